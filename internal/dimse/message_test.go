package dimse

import (
	"testing"

	"github.com/suyashkumar/dicom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadMessageRoundTripsCEchoRequest(t *testing.T) {
	elems, err := buildElements(
		tagged{CommandField, FieldCEchoRq},
		tagged{MessageID, uint16(7)},
		tagged{CommandDataSetType, uint16(CommandDataSetTypeNull)},
	)
	require.NoError(t, err)

	msg, err := ReadMessage(&dicom.Dataset{Elements: elems})
	require.NoError(t, err)

	rq, ok := msg.(*CEchoRq)
	require.True(t, ok)
	assert.Equal(t, uint16(7), rq.MessageID)
	assert.False(t, rq.HasData())
}

func TestReadMessageRoundTripsCEchoResponseWithStatus(t *testing.T) {
	elems, err := buildElements(
		tagged{CommandField, FieldCEchoRsp},
		tagged{MessageIDBeingRespondedTo, uint16(7)},
		tagged{CommandDataSetType, uint16(CommandDataSetTypeNull)},
	)
	require.NoError(t, err)
	statusElems, err := Success.ToElements()
	require.NoError(t, err)
	elems = append(elems, statusElems...)

	msg, err := ReadMessage(&dicom.Dataset{Elements: elems})
	require.NoError(t, err)

	rsp, ok := msg.(*CEchoRsp)
	require.True(t, ok)
	assert.Equal(t, uint16(7), rsp.MessageIDBeingRespondedTo)
	assert.Equal(t, StatusSuccess, rsp.Status.Code)
}

func TestReadMessageRejectsUnknownCommandField(t *testing.T) {
	elems, err := buildElements(tagged{CommandField, uint16(0x9999)})
	require.NoError(t, err)
	_, err = ReadMessage(&dicom.Dataset{Elements: elems})
	require.Error(t, err)
}
