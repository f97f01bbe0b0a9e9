// Recording codec for rxstream tests
// 录制编解码：以CBOR保存虚拟时间下记录的消息，便于回放和比对
package rxtest

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// recordingEncMode 确定性编码，便于比对录制文件
var recordingEncMode cbor.EncMode

var recordingDecMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	recordingEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create recording CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	recordingDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create recording CBOR decoder mode: %v", err))
	}
}

// Recording 一次运行的录制结果
type Recording struct {
	// RunID 运行标识
	RunID string `cbor:"1,keyasint"`
	// Name 场景名称
	Name string `cbor:"2,keyasint"`
	// Frame 每帧的虚拟时间
	Frame time.Duration `cbor:"3,keyasint"`
	// RecordedAt 录制时的墙钟时间
	RecordedAt time.Time `cbor:"4,keyasint"`
	// Messages 记录的消息
	Messages []RecordedMessage `cbor:"5,keyasint"`
}

// RecordedMessage 可序列化的消息，错误只保存文本
type RecordedMessage struct {
	Frame time.Duration `cbor:"1,keyasint"`
	Kind  Kind          `cbor:"2,keyasint"`
	Value interface{}   `cbor:"3,keyasint,omitempty"`
	Error string        `cbor:"4,keyasint,omitempty"`
}

// NewRecording 把消息转换为录制结果
func NewRecording(runID, name string, frame time.Duration, recordedAt time.Time, messages []Message) Recording {
	recorded := make([]RecordedMessage, len(messages))
	for i, m := range messages {
		recorded[i] = RecordedMessage{Frame: m.Frame, Kind: m.Kind, Value: m.Value}
		if m.Kind == KindError && m.Err != nil {
			recorded[i].Error = m.Err.Error()
		}
	}
	return Recording{
		RunID:      runID,
		Name:       name,
		Frame:      frame,
		RecordedAt: recordedAt,
		Messages:   recorded,
	}
}

// Replay 把录制的消息还原为Message，错误以其文本重建
func (r Recording) Replay() []Message {
	messages := make([]Message, len(r.Messages))
	for i, m := range r.Messages {
		messages[i] = Message{Frame: m.Frame, Notification: Notification{Kind: m.Kind, Value: m.Value}}
		if m.Kind == KindError {
			messages[i].Err = errors.New(m.Error)
		}
	}
	return messages
}

// EncodeRecording 编码单个录制结果
func EncodeRecording(recording Recording) ([]byte, error) {
	return recordingEncMode.Marshal(recording)
}

// DecodeRecording 解码单个录制结果
func DecodeRecording(data []byte) (Recording, error) {
	var recording Recording
	if err := recordingDecMode.Unmarshal(data, &recording); err != nil {
		return Recording{}, err
	}
	return recording, nil
}

// NewEncoder 创建把录制结果顺序写入w的编码器
func NewEncoder(w io.Writer) *cbor.Encoder {
	return recordingEncMode.NewEncoder(w)
}

// NewDecoder 创建从r顺序读取录制结果的解码器
func NewDecoder(r io.Reader) *cbor.Decoder {
	return recordingDecMode.NewDecoder(r)
}
