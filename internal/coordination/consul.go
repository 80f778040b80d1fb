package coordination

import (
	"context"
	"os"
	"path"
	"sync"
	"time"

	"github.com/earn9/autopsy/internal/errors"
	"github.com/earn9/autopsy/internal/logger"
	"github.com/hashicorp/consul/api"
)

const (
	keyPrefix     = "autopsy/locks"
	sessionTTL    = "30s"
	retryInterval = 500 * time.Millisecond
)

// Config contains the connection settings for the Consul agent.
type Config struct {
	Address string
}

// Validate checks the coordination configuration.
func (c Config) Validate() error {
	if c.Address == "" {
		return errors.New().New(ErrInvalidAddress)
	}
	return nil
}

// Service implements Coordinator on top of Consul sessions and the KV
// store. Consul has no native reader-writer lock, so one is layered on:
// an exclusive holder acquires the writer key and verifies no reader
// keys exist, a shared holder registers a reader key and verifies the
// writer key is free. Each side re-checks the other after acquiring,
// retrying until its deadline.
type Service struct {
	client *api.Client
}

// NewService creates a Consul-backed Coordinator.
func NewService(cfg Config) (*Service, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	apiCfg := api.DefaultConfig()
	apiCfg.Address = cfg.Address

	client, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, errFactory.Wrap(ErrUnavailable, err)
	}

	return &Service{client: client}, nil
}

// WriterKey returns the KV key an exclusive holder acquires.
func WriterKey(category, id string) string {
	return path.Join(keyPrefix, category, id, "writer")
}

// ReaderPrefix returns the KV prefix under which shared holders
// register themselves.
func ReaderPrefix(category, id string) string {
	return path.Join(keyPrefix, category, id, "readers") + "/"
}

func (s *Service) TryExclusiveLock(ctx context.Context, category, id string, timeout time.Duration) (Lock, error) {
	errFactory := errors.New()

	session, renewDone, err := s.createSession(category, id)
	if err != nil {
		return nil, err
	}

	writerKey := WriterKey(category, id)
	readerPrefix := ReaderPrefix(category, id)
	deadline := time.Now().Add(timeout)

	for {
		acquired, _, err := s.client.KV().Acquire(&api.KVPair{
			Key:     writerKey,
			Value:   lockHolderValue(),
			Session: session,
		}, nil)
		if err != nil {
			s.destroySession(session, renewDone)
			return nil, errFactory.Wrap(ErrUnavailable, err)
		}

		if acquired {
			readers, _, err := s.client.KV().Keys(readerPrefix, "", nil)
			if err != nil {
				s.releaseKey(writerKey, session)
				s.destroySession(session, renewDone)
				return nil, errFactory.Wrap(ErrUnavailable, err)
			}
			if len(readers) == 0 {
				return &consulLock{svc: s, key: writerKey, session: session, renewDone: renewDone}, nil
			}
			// Readers still active; back off and let them drain
			s.releaseKey(writerKey, session)
		}

		if err := s.wait(ctx, deadline); err != nil {
			s.destroySession(session, renewDone)
			return nil, err
		}
	}
}

func (s *Service) TrySharedLock(ctx context.Context, category, id string, timeout time.Duration) (Lock, error) {
	errFactory := errors.New()

	session, renewDone, err := s.createSession(category, id)
	if err != nil {
		return nil, err
	}

	writerKey := WriterKey(category, id)
	readerKey := ReaderPrefix(category, id) + session
	deadline := time.Now().Add(timeout)

	for {
		free, err := s.writerFree(writerKey)
		if err != nil {
			s.destroySession(session, renewDone)
			return nil, err
		}

		if free {
			acquired, _, err := s.client.KV().Acquire(&api.KVPair{
				Key:     readerKey,
				Value:   lockHolderValue(),
				Session: session,
			}, nil)
			if err != nil {
				s.destroySession(session, renewDone)
				return nil, errFactory.Wrap(ErrUnavailable, err)
			}

			if acquired {
				// A writer may have slipped in between the check and the
				// acquire; verify and back out if so.
				free, err := s.writerFree(writerKey)
				if err != nil {
					s.releaseKey(readerKey, session)
					s.destroySession(session, renewDone)
					return nil, err
				}
				if free {
					return &consulLock{svc: s, key: readerKey, session: session, renewDone: renewDone}, nil
				}
				s.releaseKey(readerKey, session)
			}
		}

		if err := s.wait(ctx, deadline); err != nil {
			s.destroySession(session, renewDone)
			return nil, err
		}
	}
}

func (s *Service) createSession(category, id string) (string, chan struct{}, error) {
	session, _, err := s.client.Session().Create(&api.SessionEntry{
		Name:      path.Join("healthmond", category, id),
		TTL:       sessionTTL,
		Behavior:  api.SessionBehaviorDelete,
		LockDelay: time.Millisecond,
	}, nil)
	if err != nil {
		return "", nil, errors.New().Wrap(ErrSessionFailed, err)
	}

	// Keep the session alive while the lock is being waited on or held
	renewDone := make(chan struct{})
	go func() {
		if err := s.client.Session().RenewPeriodic(sessionTTL, session, nil, renewDone); err != nil {
			logger.Debug().Err(err).Str("session", session).Msg("Session renewal stopped")
		}
	}()

	return session, renewDone, nil
}

func (s *Service) destroySession(session string, renewDone chan struct{}) {
	close(renewDone)
	if _, err := s.client.Session().Destroy(session, nil); err != nil {
		logger.Warn().Err(err).Str("session", session).Msg("Failed to destroy lock session")
	}
}

func (s *Service) releaseKey(key, session string) {
	if _, _, err := s.client.KV().Release(&api.KVPair{Key: key, Session: session}, nil); err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("Failed to release lock key")
	}
}

func (s *Service) writerFree(writerKey string) (bool, error) {
	pair, _, err := s.client.KV().Get(writerKey, nil)
	if err != nil {
		return false, errors.New().Wrap(ErrUnavailable, err)
	}
	return pair == nil || pair.Session == "", nil
}

func (s *Service) wait(ctx context.Context, deadline time.Time) error {
	if time.Now().After(deadline) {
		return errors.New().New(ErrLockTimeout)
	}

	select {
	case <-ctx.Done():
		return errors.New().Wrap(ErrLockTimeout, ctx.Err())
	case <-time.After(retryInterval):
		return nil
	}
}

func lockHolderValue() []byte {
	host, err := os.Hostname()
	if err != nil {
		return []byte("unknown")
	}
	return []byte(host)
}

// consulLock is a held lock backed by a Consul session. Destroying the
// session deletes the lock key (SessionBehaviorDelete), which is what
// releases the lock for other holders.
type consulLock struct {
	svc       *Service
	key       string
	session   string
	renewDone chan struct{}

	mu       sync.Mutex
	released bool
}

func (l *consulLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.released {
		return nil
	}
	l.released = true

	close(l.renewDone)

	if _, err := l.svc.client.Session().Destroy(l.session, nil); err != nil {
		// Leave the key to expire with the session TTL
		return errors.New().Wrap(ErrLockRelease, err)
	}

	return nil
}
