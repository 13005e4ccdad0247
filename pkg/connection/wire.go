/*
Copyright 2024 The Entitynet Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package connection

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/entitynet/replicore/pkg/action"
	"github.com/entitynet/replicore/pkg/seq"
)

// encodeFrame prepends the 16-bit Seq this module's reliable receiver
// needs (§4.1) to an action-encoded body. The Seq is deliberately outside
// action.Codec's contract (§6 describes that contract purely in terms of
// the per-action tag/entity/payload wire format) - it is this package's
// own minimal packet envelope, not a codec concern, so plain
// encoding/binary is the right tool rather than inventing a second
// external contract for two bytes of framing.
func encodeFrame(codec action.Codec, s seq.Seq, msg action.WireMessage) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, uint16(s)); err != nil {
		return nil, fmt.Errorf("connection: writing seq prefix: %w", err)
	}
	if err := codec.EncodeAction(&buf, msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeFrame reverses encodeFrame.
func decodeFrame(codec action.Codec, frame []byte) (seq.Seq, action.WireMessage, error) {
	r := bytes.NewReader(frame)
	var s uint16
	if err := binary.Read(r, binary.BigEndian, &s); err != nil {
		return 0, action.WireMessage{}, fmt.Errorf("connection: reading seq prefix: %w", err)
	}
	msg, err := codec.DecodeAction(r)
	return seq.Seq(s), msg, err
}
