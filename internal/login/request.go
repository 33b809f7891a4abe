// Package login implements the connection handshake that authenticates a
// client and keys its session ciphers.
package login

import (
	"fmt"

	"github.com/Rune-Status/aj8/internal/isaac"
)

// Login types sent in the header.
const (
	TypeStandard     = 16
	TypeReconnection = 18
)

// Wire constants of the login payload.
const (
	Magic             = 0xFF
	SecureID          = 10
	ArchiveCount      = 9
	MaxUsernameLength = 12
	MaxPasswordLength = 20

	// fixedPayloadLength is the size of every payload field before the
	// secure block: magic, version, low memory flag, checksums and the secure
	// length itself.
	fixedPayloadLength = 1 + 2 + 1 + ArchiveCount*4 + 1

	handshakeResponseLength = 17
)

// Credentials identify the account a client logs into.
type Credentials struct {
	Username string
	Password string
	// UsernameHash is the byte sent before the handshake. It is carried for
	// load balancing and never interpreted here.
	UsernameHash int
	UID          int
}

// String hides the password.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{username=%q uid=%d}", c.Username, c.UID)
}

// Request is the result of a successful handshake.
type Request struct {
	Credentials   Credentials
	Ciphers       *isaac.Pair
	Reconnecting  bool
	LowMemory     bool
	ClientVersion int
	ArchiveCRCs   [ArchiveCount]uint32
}

// Status is the first byte of a login response.
type Status byte

const (
	StatusExchangeData         Status = 0
	StatusDelay                Status = 1
	StatusOK                   Status = 2
	StatusInvalidCredentials   Status = 3
	StatusAccountDisabled      Status = 4
	StatusAccountOnline        Status = 5
	StatusGameUpdated          Status = 6
	StatusServerFull           Status = 7
	StatusLoginServerOffline   Status = 8
	StatusTooManyConnections   Status = 9
	StatusBadSessionID         Status = 10
	StatusLoginServerRejected  Status = 11
	StatusMembersAccount       Status = 12
	StatusCouldNotComplete     Status = 13
	StatusUpdating             Status = 14
	StatusReconnectionOK       Status = 15
	StatusTooManyLoginAttempts Status = 16
	StatusInMembersArea        Status = 17
	StatusInvalidLoginServer   Status = 20
	StatusProfileTransfer      Status = 21
)

var statusNames = map[Status]string{
	StatusExchangeData:         "exchange_data",
	StatusDelay:                "delay",
	StatusOK:                   "ok",
	StatusInvalidCredentials:   "invalid_credentials",
	StatusAccountDisabled:      "account_disabled",
	StatusAccountOnline:        "account_online",
	StatusGameUpdated:          "game_updated",
	StatusServerFull:           "server_full",
	StatusLoginServerOffline:   "login_server_offline",
	StatusTooManyConnections:   "too_many_connections",
	StatusBadSessionID:         "bad_session_id",
	StatusLoginServerRejected:  "login_server_rejected",
	StatusMembersAccount:       "members_account",
	StatusCouldNotComplete:     "could_not_complete",
	StatusUpdating:             "updating",
	StatusReconnectionOK:       "reconnection_ok",
	StatusTooManyLoginAttempts: "too_many_login_attempts",
	StatusInMembersArea:        "in_members_area",
	StatusInvalidLoginServer:   "invalid_login_server",
	StatusProfileTransfer:      "profile_transfer",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status_%d", byte(s))
}

// Successful reports whether the client enters the game with this status.
func (s Status) Successful() bool {
	return s == StatusOK || s == StatusReconnectionOK
}

// Response is written once the credentials have been checked.
type Response struct {
	Status  Status
	Rights  int
	Flagged bool
}

// Bytes encodes the response. Rights and the flagged marker only follow a
// successful status.
func (r Response) Bytes() []byte {
	if !r.Status.Successful() {
		return []byte{byte(r.Status)}
	}
	flagged := byte(0)
	if r.Flagged {
		flagged = 1
	}
	return []byte{byte(r.Status), byte(r.Rights), flagged}
}
