package assoc

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssociateRQEncodeRejectsEmptyAETitles(t *testing.T) {
	rq := &associateRQ{CalledAETitle: "", CallingAETitle: "CONSOLE1"}
	_, err := rq.encode()
	require.Error(t, err)
}

func TestAssociateACEncodeDecodeRoundTripsFields(t *testing.T) {
	ac := &associateAC{
		CalledAETitle:      "PACS1",
		CallingAETitle:     "CONSOLE1",
		ApplicationContext: "1.2.840.10008.3.1.1.1",
		PresentationContexts: []PresentationContext{
			{ID: 1, Result: PresentationResultAccepted, TransferSyntaxes: []string{"1.2.840.10008.1.2.1"}},
		},
		MaxPDULength:      16384,
		ImplementationUID: "1.2.840.99999.9.1",
	}
	encoded, err := ac.encode()
	require.NoError(t, err)
	require.Equal(t, pduTypeAssociateAC, encoded[0])

	decoded, err := decodeAssociateAC(encoded[6:])
	require.NoError(t, err)
	assert.Equal(t, "PACS1", decoded.CalledAETitle)
	assert.Equal(t, "CONSOLE1", decoded.CallingAETitle)
	assert.Equal(t, "1.2.840.10008.3.1.1.1", decoded.ApplicationContext)
	assert.Equal(t, uint32(16384), decoded.MaxPDULength)
	assert.Equal(t, "1.2.840.99999.9.1", decoded.ImplementationUID)
	require.Len(t, decoded.PresentationContexts, 1)
	assert.Equal(t, byte(1), decoded.PresentationContexts[0].ID)
	assert.Equal(t, PresentationResultAccepted, decoded.PresentationContexts[0].Result)
	assert.Equal(t, []string{"1.2.840.10008.1.2.1"}, decoded.PresentationContexts[0].TransferSyntaxes)
}

func TestDecodeAssociateRJExtractsResultSourceReason(t *testing.T) {
	body := []byte{0, 1, 2, 3}
	rj, err := decodeAssociateRJ(body)
	require.NoError(t, err)
	assert.Equal(t, byte(1), rj.Result)
	assert.Equal(t, byte(2), rj.Source)
	assert.Equal(t, byte(3), rj.Reason)
}

func TestDecodeAssociateRJRejectsTooShortBody(t *testing.T) {
	_, err := decodeAssociateRJ([]byte{0, 1})
	require.Error(t, err)
}

func TestEncodeAndDecodePDataTFFragmentsLargeData(t *testing.T) {
	command := []byte{0x01, 0x02, 0x03}
	dataset := bytes.Repeat([]byte{0xAB}, 20)

	encoded := encodePDataTF(1, command, dataset, 8)
	require.Equal(t, pduTypePDataTF, encoded[0])

	pdvs, err := decodePDataTF(encoded[6:])
	require.NoError(t, err)
	require.NotEmpty(t, pdvs)

	var reassembledCommand, reassembledDataset []byte
	for _, p := range pdvs {
		assert.Equal(t, byte(1), p.PresentationContextID)
		if p.IsCommand {
			reassembledCommand = append(reassembledCommand, p.Data...)
		} else {
			reassembledDataset = append(reassembledDataset, p.Data...)
		}
	}
	assert.Equal(t, command, reassembledCommand)
	assert.Equal(t, dataset, reassembledDataset)

	last := pdvs[len(pdvs)-1]
	assert.True(t, last.IsLast)
}

func TestDecodePDataTFRejectsMalformedPDV(t *testing.T) {
	_, err := decodePDataTF([]byte{0, 0, 0, 1, 0})
	require.Error(t, err)
}

func TestPadAETitleTruncatesAndPadsToSixteenBytes(t *testing.T) {
	assert.Equal(t, 16, len(padAETitle("SHORT")))
	assert.Equal(t, "SHORT           ", padAETitle("SHORT"))
	assert.Equal(t, 16, len(padAETitle("A_NAME_LONGER_THAN_SIXTEEN_CHARS")))
}

func TestEncodeReleaseAndAbortPDUsCarryFixedFourByteBody(t *testing.T) {
	rq := encodeReleaseRQ()
	assert.Equal(t, pduTypeReleaseRQ, rq[0])
	assert.Len(t, rq, 10)

	rp := encodeReleaseRP()
	assert.Equal(t, pduTypeReleaseRP, rp[0])

	abort := encodeAbort(0, 2)
	assert.Equal(t, pduTypeAbort, abort[0])
	assert.Equal(t, byte(2), abort[len(abort)-1])
}

func TestReadPDURoundTripsHeaderAndBody(t *testing.T) {
	rq := &associateRQ{
		CalledAETitle:      "PACS1",
		CallingAETitle:     "CONSOLE1",
		ApplicationContext: "1.2.840.10008.3.1.1.1",
		MaxPDULength:       16384,
	}
	encoded, err := rq.encode()
	require.NoError(t, err)

	pduType, body, err := readPDU(bytes.NewReader(encoded))
	require.NoError(t, err)
	assert.Equal(t, pduTypeAssociateRQ, pduType)
	assert.Equal(t, encoded[6:], body)
}
