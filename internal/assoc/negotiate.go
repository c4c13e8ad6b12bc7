package assoc

// Transfer syntax UIDs, in the priority order spec.md §5.2 mandates for
// diagnostic image transmission: lossless compression preferred over
// uncompressed, Explicit VR preferred over Implicit VR among the
// uncompressed choices.
const (
	TransferSyntaxJPEG2000Lossless = "1.2.840.10008.1.2.4.90"
	TransferSyntaxJPEGLossless     = "1.2.840.10008.1.2.4.70"
	TransferSyntaxExplicitVRLE     = "1.2.840.10008.1.2.1"
	TransferSyntaxImplicitVRLE     = "1.2.840.10008.1.2"
)

// PreferredTransferSyntaxOrder is the proposal order used when offering
// transfer syntaxes for a diagnostic image presentation context.
var PreferredTransferSyntaxOrder = []string{
	TransferSyntaxJPEG2000Lossless,
	TransferSyntaxJPEGLossless,
	TransferSyntaxExplicitVRLE,
	TransferSyntaxImplicitVRLE,
}

// LosslessTransferSyntaxes is the subset of PreferredTransferSyntaxOrder
// that preserve pixel data exactly; the transcoder refuses any other
// target for diagnostic images per spec.md's lossless-only invariant.
var LosslessTransferSyntaxes = map[string]bool{
	TransferSyntaxJPEG2000Lossless: true,
	TransferSyntaxJPEGLossless:     true,
	TransferSyntaxExplicitVRLE:     true,
	TransferSyntaxImplicitVRLE:     true,
}

// RankTransferSyntax returns the proposal's priority position for uid, or
// -1 if uid is not one of the accepted choices. Lower is more preferred.
func RankTransferSyntax(uid string) int {
	for i, ts := range PreferredTransferSyntaxOrder {
		if ts == uid {
			return i
		}
	}
	return -1
}
