package mqtt

import (
	"fmt"

	"github.com/golang/protobuf/jsonpb"
	"github.com/golang/protobuf/proto"
	structpb "github.com/golang/protobuf/ptypes/struct"

	"github.com/robotalks/servolink/pkg/link"
)

// Keys of telemetry sample structs.
const (
	SampleKeyLink      = "link"
	SampleKeyField     = "field"
	SampleKeyValue     = "value"
	SampleKeyTimestamp = "timestamp_ms"
)

// SampleStruct converts a telemetry sample to a protobuf Struct.
func SampleStruct(linkID string, s link.Sample) *structpb.Struct {
	return &structpb.Struct{
		Fields: map[string]*structpb.Value{
			SampleKeyLink:      {Kind: &structpb.Value_StringValue{StringValue: linkID}},
			SampleKeyField:     {Kind: &structpb.Value_StringValue{StringValue: s.Field.String()}},
			SampleKeyValue:     {Kind: &structpb.Value_NumberValue{NumberValue: float64(s.Value)}},
			SampleKeyTimestamp: {Kind: &structpb.Value_NumberValue{NumberValue: float64(s.Timestamp)}},
		},
	}
}

// EncodeSample encodes a telemetry sample as protobuf.
func EncodeSample(linkID string, s link.Sample) ([]byte, error) {
	return proto.Marshal(SampleStruct(linkID, s))
}

// DecodeSample decodes a telemetry sample encoded by EncodeSample.
func DecodeSample(payload []byte) (linkID string, s link.Sample, err error) {
	var st structpb.Struct
	if err = proto.Unmarshal(payload, &st); err != nil {
		return
	}
	linkID = st.Fields[SampleKeyLink].GetStringValue()
	if s.Field, err = link.ParseField(st.Fields[SampleKeyField].GetStringValue()); err != nil {
		return
	}
	val, ok := st.Fields[SampleKeyValue].GetKind().(*structpb.Value_NumberValue)
	if !ok {
		err = fmt.Errorf("sample without value")
		return
	}
	s.Value = int32(val.NumberValue)
	s.Timestamp = uint32(st.Fields[SampleKeyTimestamp].GetNumberValue())
	return
}

// SampleJSON renders a protobuf encoded sample in JSON.
func SampleJSON(payload []byte) (string, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(payload, &st); err != nil {
		return "", err
	}
	return (&jsonpb.Marshaler{}).MarshalToString(&st)
}
