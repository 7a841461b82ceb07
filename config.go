package torrent

import (
	"time"

	"github.com/anacrolix/log"
	"golang.org/x/time/rate"
)

// ManagerConfig holds the caps, timeouts, and shared collaborators the
// Connection Manager needs but does not own: exported fields, a
// NewDefault constructor, and nothing about disk, tracker, DHT, or CLI
// concerns, which live with whatever embeds this package.
type ManagerConfig struct {
	// MaxOpen is the global cap on Connected peers across all registered
	// torrents.
	MaxOpen int
	// MaxHalfOpen is the global cap on in-flight Pending Dials across all
	// registered torrents.
	MaxHalfOpen int

	// StaleDialThreshold is how long a Pending Dial may sit unresolved
	// before the cancellation sweep disposes its connection handle.
	StaleDialThreshold time.Duration

	// ReuseCap is how many cleanup cycles a peer may pass through before
	// it is no longer reinserted into Available.
	ReuseCap int

	// HandshakesTimeout bounds the outbound pipeline's handshake receive
	// stage.
	HandshakesTimeout time.Duration

	// UploadRateLimiter and DownloadRateLimiter are shared by reference
	// with send_message/receive_message; the Connection Manager never
	// mutates them.
	UploadRateLimiter   *rate.Limiter
	DownloadRateLimiter *rate.Limiter

	// Encryption is the policy an EncryptionNegotiator consults when
	// deciding how hard to insist on an obfuscated connection.
	Encryption EncryptionPolicy

	Logger log.Logger
}

// EncryptionPolicy controls how an EncryptionNegotiator weighs obfuscated
// connections against plaintext ones.
type EncryptionPolicy struct {
	// Preferred is whether header obfuscation is preferred over plaintext.
	Preferred bool
	// RequirePreferred is whether Preferred is a strict requirement rather
	// than just a preference; when true, a negotiator must not fall back
	// to the non-preferred family.
	RequirePreferred bool
}

// NewDefaultManagerConfig returns a ManagerConfig with a fixed stale-dial
// threshold and reuse cap, and otherwise reasonable defaults for the caps
// a single process embeds.
func NewDefaultManagerConfig() *ManagerConfig {
	return &ManagerConfig{
		MaxOpen:             200,
		MaxHalfOpen:         100,
		StaleDialThreshold:  10 * time.Second,
		ReuseCap:            5,
		HandshakesTimeout:   4 * time.Second,
		UploadRateLimiter:   rate.NewLimiter(rate.Inf, 0),
		DownloadRateLimiter: rate.NewLimiter(rate.Inf, 0),
		Logger:              log.Default,
	}
}
