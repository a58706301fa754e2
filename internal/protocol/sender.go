package protocol

import "strconv"

// State is a step of the chunked transfer state machine.
type State int

const (
	AwaitLength State = iota
	AwaitLengthAck
	SendChunk
	AwaitChunkAck
	RecvChunk
	Done
)

func (st State) String() string {
	switch st {
	case AwaitLength:
		return "await-length"
	case AwaitLengthAck:
		return "await-length-ack"
	case SendChunk:
		return "send-chunk"
	case AwaitChunkAck:
		return "await-chunk-ack"
	case RecvChunk:
		return "recv-chunk"
	case Done:
		return "done"
	default:
		return "state(" + strconv.Itoa(int(st)) + ")"
	}
}

// sender drives the send direction:
// AwaitLength -> AwaitLengthAck -> SendChunk -> AwaitChunkAck -> (SendChunk | Done).
type sender struct {
	s       *Stream
	payload []byte
	off     int
	state   State
}

func (snd *sender) run() error {
	for {
		switch snd.state {
		case AwaitLength:
			if err := snd.s.Send([]byte(strconv.Itoa(len(snd.payload)))); err != nil {
				return err
			}
			snd.state = AwaitLengthAck

		case AwaitLengthAck:
			if err := snd.s.recvAck(AwaitLengthAck); err != nil {
				return err
			}
			snd.state = snd.next()

		case SendChunk:
			end := min(snd.off+snd.s.cfg.chunkSize, len(snd.payload))
			if err := snd.s.Send(snd.payload[snd.off:end]); err != nil {
				return err
			}
			snd.off = end
			snd.state = AwaitChunkAck

		case AwaitChunkAck:
			if err := snd.s.recvAck(AwaitChunkAck); err != nil {
				return err
			}
			snd.state = snd.next()

		case Done:
			return nil
		}
	}
}

func (snd *sender) next() State {
	if snd.off < len(snd.payload) {
		return SendChunk
	}
	return Done
}
