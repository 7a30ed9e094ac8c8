package core

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Compression settings handed to the transport collaborator.
type Compression struct {
	Incoming bool
	Outgoing bool

	// Level is a zlib level in [-1, 9]; 0 disables compression
	Level int

	// Threshold in bytes below which messages are sent uncompressed
	Threshold int
}

// Settings is the process-wide configuration of a runtime. The core itself
// only consults the channel table; the rest is read by transport
// collaborators.
type Settings struct {
	channels *ChannelTable

	mu             sync.RWMutex
	defaultChannel int
	compression    Compression
	tcpKeepAlive   bool
	keepAlive      bool
	idleTimeout    time.Duration
	dns            map[string]string
	publicFiles    map[int]string
}

// NewSettings creates settings with default values.
func NewSettings() *Settings {
	return &Settings{
		channels:    NewChannelTable(),
		dns:         make(map[string]string),
		publicFiles: make(map[int]string),
	}
}

// Channels returns the channel property table.
func (s *Settings) Channels() *ChannelTable {
	return s.channels
}

// SetDefaultChannel sets the channel used when an activation names none.
func (s *Settings) SetDefaultChannel(id int) error {
	if err := checkChannel(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.defaultChannel = id
	return nil
}

// DefaultChannel returns the default channel id.
func (s *Settings) DefaultChannel() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaultChannel
}

// SetCompression replaces the compression settings.
func (s *Settings) SetCompression(c Compression) error {
	if c.Level < -1 || c.Level > 9 {
		return fmt.Errorf("%w: %d", ErrInvalidCompressionLevel, c.Level)
	}
	if c.Threshold < 0 {
		c.Threshold = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.compression = c
	return nil
}

// Compression returns the compression settings.
func (s *Settings) Compression() Compression {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.compression
}

// SetKeepAlive sets TCP level and application level keep-alive. Enabling
// application keep-alive implies an idle timeout.
func (s *Settings) SetKeepAlive(tcp, application bool, idleTimeout time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tcpKeepAlive = tcp
	s.keepAlive = application
	if idleTimeout < 0 {
		idleTimeout = 0
	}
	s.idleTimeout = idleTimeout
}

// KeepAlive returns the keep-alive settings.
func (s *Settings) KeepAlive() (tcp, application bool, idleTimeout time.Duration) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tcpKeepAlive, s.keepAlive, s.idleTimeout
}

// AddDNSRecord maps a DNS server name to "ip:port". A later mapping for the
// same name replaces the earlier one.
func (s *Settings) AddDNSRecord(name, address string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if address == "" {
		delete(s.dns, name)
		return
	}
	s.dns[name] = address
}

// DNSRecord resolves a DNS server name.
func (s *Settings) DNSRecord(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	addr, ok := s.dns[name]
	return addr, ok
}

// AddPublicFile exposes path to remote runtimes under id. An empty path
// removes the mapping of id.
func (s *Settings) AddPublicFile(path string, id int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if path == "" {
		delete(s.publicFiles, id)
		return
	}
	s.publicFiles[id] = path
}

// PublicFile returns the path registered under id.
func (s *Settings) PublicFile(id int) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path, ok := s.publicFiles[id]
	return path, ok
}

// PublicFileIDs returns the registered ids in ascending order.
func (s *Settings) PublicFileIDs() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int, 0, len(s.publicFiles))
	for id := range s.publicFiles {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// ClearPublicFiles makes the runtime completely private.
func (s *Settings) ClearPublicFiles() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.publicFiles = make(map[int]string)
}
