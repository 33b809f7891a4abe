package login

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/Rune-Status/aj8/internal/isaac"
	"github.com/Rune-Status/aj8/internal/protocol"
)

// Protocol violations. Each one ends the connection.
var (
	ErrBadLoginType     = errors.New("invalid login type")
	ErrBadMagic         = errors.New("invalid magic id")
	ErrVersionMismatch  = errors.New("unsupported client version")
	ErrBadLowMemory     = errors.New("invalid low memory flag")
	ErrLengthMismatch   = errors.New("secure payload length mismatch")
	ErrBadSecureID      = errors.New("invalid secure payload id")
	ErrSeedMismatch     = errors.New("server seed mismatch")
	ErrStringTooLong    = errors.New("credential too long")
	ErrDecoderFinished  = errors.New("login decoder already finished")
	ErrSeedUnavailable  = errors.New("failed to generate server seed")
	ErrResponseRejected = errors.New("failed to write handshake response")
)

type state int

const (
	stateHandshake state = iota
	stateHeader
	statePayload
	stateDone
	stateFailed
)

func (s state) String() string {
	switch s {
	case stateHandshake:
		return "HANDSHAKE"
	case stateHeader:
		return "HEADER"
	case statePayload:
		return "PAYLOAD"
	case stateDone:
		return "DONE"
	default:
		return "FAILED"
	}
}

// Decoder runs the login handshake for one connection. Like the frame
// decoder it never blocks: Decode returns (nil, nil) until enough bytes are
// buffered for the current stage.
type Decoder struct {
	random  io.Reader
	version int

	state         state
	usernameHash  int
	serverSeed    uint64
	reconnecting  bool
	payloadLength int
	failedIn      state
}

// NewDecoder creates a decoder that draws server seeds from random and
// accepts clients of the given release.
func NewDecoder(random io.Reader, version int) *Decoder {
	return &Decoder{random: random, version: version}
}

// Stage returns the name of the current stage, for logging.
func (d *Decoder) Stage() string {
	return d.state.String()
}

// FailedStage returns the stage the decoder failed in, or "" if it has not
// failed.
func (d *Decoder) FailedStage() string {
	if d.state != stateFailed {
		return ""
	}
	return d.failedIn.String()
}

// Decode advances through as many stages as the buffered input allows. The
// handshake response is written to out. On success the returned request owns
// the session ciphers and any bytes after the payload stay in in for the
// frame decoder. After an error the decoder is unusable.
func (d *Decoder) Decode(in *bytes.Buffer, out io.Writer) (*Request, error) {
	for {
		switch d.state {
		case stateHandshake:
			if in.Len() < 1 {
				return nil, nil
			}
			if err := d.decodeHandshake(in, out); err != nil {
				return nil, d.fail(err)
			}

		case stateHeader:
			if in.Len() < 2 {
				return nil, nil
			}
			if err := d.decodeHeader(in); err != nil {
				return nil, d.fail(err)
			}

		case statePayload:
			if in.Len() < d.payloadLength {
				return nil, nil
			}
			payload := make([]byte, d.payloadLength)
			copy(payload, in.Next(d.payloadLength))

			req, err := d.decodePayload(payload)
			if err != nil {
				return nil, d.fail(err)
			}
			d.state = stateDone
			return req, nil

		default:
			return nil, ErrDecoderFinished
		}
	}
}

func (d *Decoder) decodeHandshake(in *bytes.Buffer, out io.Writer) error {
	hash, _ := in.ReadByte()
	d.usernameHash = int(hash)

	var seed [8]byte
	if _, err := io.ReadFull(d.random, seed[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrSeedUnavailable, err)
	}
	d.serverSeed = binary.BigEndian.Uint64(seed[:])

	resp := make([]byte, handshakeResponseLength)
	resp[0] = byte(StatusExchangeData)
	copy(resp[9:], seed[:])
	if _, err := out.Write(resp); err != nil {
		return fmt.Errorf("%w: %v", ErrResponseRejected, err)
	}

	d.state = stateHeader
	return nil
}

func (d *Decoder) decodeHeader(in *bytes.Buffer) error {
	loginType, _ := in.ReadByte()
	if loginType != TypeStandard && loginType != TypeReconnection {
		return fmt.Errorf("%w: %d", ErrBadLoginType, loginType)
	}
	length, _ := in.ReadByte()

	d.reconnecting = loginType == TypeReconnection
	d.payloadLength = int(length)
	d.state = statePayload
	return nil
}

func (d *Decoder) decodePayload(payload []byte) (*Request, error) {
	r := protocol.NewReader(payload)

	if magic := r.UnsignedByte(); magic != Magic {
		return nil, fmt.Errorf("%w: %#x", ErrBadMagic, magic)
	}
	if version := r.UnsignedShort(); version != d.version {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, version, d.version)
	}

	lowMemory := r.UnsignedByte()
	if lowMemory != 0 && lowMemory != 1 {
		return nil, fmt.Errorf("%w: %d", ErrBadLowMemory, lowMemory)
	}

	var crcs [ArchiveCount]uint32
	for i := range crcs {
		crcs[i] = uint32(r.Unsigned(protocol.Int, protocol.Big, protocol.None))
	}

	secureLength := r.UnsignedByte()
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLengthMismatch, err)
	}
	if secureLength != d.payloadLength-fixedPayloadLength {
		return nil, fmt.Errorf("%w: secure length %d, payload length %d", ErrLengthMismatch, secureLength, d.payloadLength)
	}

	secure := protocol.NewReader(r.Bytes(secureLength))
	if id := secure.UnsignedByte(); id != SecureID {
		return nil, fmt.Errorf("%w: %d", ErrBadSecureID, id)
	}

	clientSeed := secure.Unsigned(protocol.Long, protocol.Big, protocol.None)
	echoedSeed := secure.Unsigned(protocol.Long, protocol.Big, protocol.None)
	uid := int(secure.Unsigned(protocol.Int, protocol.Big, protocol.None))
	username := secure.String()
	password := secure.String()
	if err := secure.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLengthMismatch, err)
	}
	if echoedSeed != d.serverSeed {
		return nil, ErrSeedMismatch
	}
	if len(username) > MaxUsernameLength {
		return nil, fmt.Errorf("%w: username of %d characters", ErrStringTooLong, len(username))
	}
	if len(password) > MaxPasswordLength {
		return nil, fmt.Errorf("%w: password of %d characters", ErrStringTooLong, len(password))
	}

	return &Request{
		Credentials: Credentials{
			Username:     username,
			Password:     password,
			UsernameHash: d.usernameHash,
			UID:          uid,
		},
		Ciphers:       isaac.NewPair(isaac.Seed(clientSeed, d.serverSeed)),
		Reconnecting:  d.reconnecting,
		LowMemory:     lowMemory == 1,
		ClientVersion: d.version,
		ArchiveCRCs:   crcs,
	}, nil
}

func (d *Decoder) fail(err error) error {
	d.failedIn = d.state
	d.state = stateFailed
	d.serverSeed = 0
	d.payloadLength = 0
	return err
}
