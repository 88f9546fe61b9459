// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package logging

import (
	"fmt"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
)

const (
	maxSequenceNumberPlusOne = int64(65536)
	breakpoint               = 32768 // half of max uint16
)

type unwrapper struct {
	init          bool
	lastUnwrapped int64
}

func isNewer(value, previous uint16) bool {
	if value-previous == breakpoint {
		return value > previous
	}

	return value != previous && (value-previous) < breakpoint
}

// unwrap extends a 16 bit sequence number to a monotonic 64 bit counter.
func (u *unwrapper) unwrap(i uint16) int64 {
	if !u.init {
		u.init = true
		u.lastUnwrapped = int64(i)

		return u.lastUnwrapped
	}

	lastWrapped := uint16(u.lastUnwrapped) //nolint:gosec
	delta := int64(i - lastWrapped)
	if isNewer(i, lastWrapped) {
		if delta < 0 {
			delta += maxSequenceNumberPlusOne
		}
	} else if delta > 0 && u.lastUnwrapped+delta-maxSequenceNumberPlusOne >= 0 {
		delta -= maxSequenceNumberPlusOne
	}

	u.lastUnwrapped += delta

	return u.lastUnwrapped
}

// RTPFormatter renders one CSV line per RTP packet:
// unix_ms, payload_type, ssrc, seq, rtp_ts, marker, size, twcc_seq, unwrapped_seq.
// It is not safe for concurrent use; give every packetdump interceptor its own.
type RTPFormatter struct {
	seqnr unwrapper
	now   func() time.Time
}

// RTPFormat implements packetdump.RTPFormatCallback.
func (f *RTPFormatter) RTPFormat(pkt *rtp.Packet, _ interceptor.Attributes) string {
	now := time.Now
	if f.now != nil {
		now = f.now
	}

	unwrappedSeqNr := f.seqnr.unwrap(pkt.SequenceNumber)

	// 0 when the packet carries no transport-wide sequence number
	var twccNr uint16
	if ids := pkt.GetExtensionIDs(); len(ids) > 0 {
		var twcc rtp.TransportCCExtension
		if err := twcc.Unmarshal(pkt.GetExtension(ids[0])); err == nil {
			twccNr = twcc.TransportSequence
		}
	}

	return fmt.Sprintf("%v, %v, %v, %v, %v, %v, %v, %v, %v\n",
		now().UnixMilli(),
		pkt.PayloadType,
		pkt.SSRC,
		pkt.SequenceNumber,
		pkt.Timestamp,
		pkt.Marker,
		pkt.MarshalSize(),
		twccNr,
		unwrappedSeqNr,
	)
}

// RTCPFormat renders "unix_ms, feedback_bytes" for a batch of RTCP packets.
func RTCPFormat(pkts []rtcp.Packet, _ interceptor.Attributes) string {
	size := 0
	for _, pkt := range pkts {
		switch feedback := pkt.(type) {
		case *rtcp.TransportLayerCC:
			size += int(feedback.Len())
		case *rtcp.RawPacket:
			size += len(*feedback)
		}
	}

	return fmt.Sprintf("%v, %v\n", time.Now().UnixMilli(), size)
}
