package secretstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/zalando/go-keyring"
)

// DefaultChunkSize keeps every keyring entry below the Windows credential
// limit (2560 bytes) and the macOS command limit once base64 encoded.
const DefaultChunkSize = 2000

// chunkMarker prefixes the head entry of a value split across entries. The
// colon never occurs in base64 so it cannot collide with a sealed value.
const chunkMarker = "cloudauth-chunks:"

// Keyring stores secrets in the operating system credential manager.
// Values longer than the chunk size are split across key, key.1 .. key.N,
// with the head entry recording N.
type Keyring struct {
	service   string
	chunkSize int
}

// KeyringOption configures a Keyring.
type KeyringOption func(*Keyring)

// WithChunkSize overrides DefaultChunkSize.
func WithChunkSize(n int) KeyringOption {
	return func(k *Keyring) {
		if n > 0 {
			k.chunkSize = n
		}
	}
}

// NewKeyring returns a store whose entries are grouped under service.
func NewKeyring(service string, opts ...KeyringOption) *Keyring {
	k := &Keyring{service: service, chunkSize: DefaultChunkSize}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

func (k *Keyring) Get(_ context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}
	head, ok, err := k.get(key)
	if err != nil || !ok {
		return "", ok, err
	}
	n, chunked := chunkCount(head)
	if !chunked {
		return head, true, nil
	}

	var b strings.Builder
	for i := 1; i <= n; i++ {
		part, ok, err := k.get(chunkKey(key, i))
		if err != nil {
			return "", false, err
		}
		if !ok {
			return "", false, fmt.Errorf("%w: %s part %d of %d missing", ErrIncompleteEntry, key, i, n)
		}
		b.WriteString(part)
	}
	return b.String(), true, nil
}

func (k *Keyring) Set(_ context.Context, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	previous, err := k.parts(key)
	if err != nil {
		return err
	}

	if len(value) <= k.chunkSize {
		if err := k.set(key, value); err != nil {
			return err
		}
		return k.deleteParts(key, 1, previous)
	}

	n := 0
	for start := 0; start < len(value); start += k.chunkSize {
		n++
		end := min(start+k.chunkSize, len(value))
		if err := k.set(chunkKey(key, n), value[start:end]); err != nil {
			return err
		}
	}
	// The head goes last so a reader never sees a count ahead of its parts.
	if err := k.set(key, chunkMarker+strconv.Itoa(n)); err != nil {
		return err
	}
	return k.deleteParts(key, n+1, previous)
}

func (k *Keyring) Delete(_ context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	n, err := k.parts(key)
	if err != nil {
		return err
	}
	if err := k.delete(key); err != nil {
		return err
	}
	return k.deleteParts(key, 1, n)
}

// parts returns how many chunk entries currently back key.
func (k *Keyring) parts(key string) (int, error) {
	head, ok, err := k.get(key)
	if err != nil || !ok {
		return 0, err
	}
	n, _ := chunkCount(head)
	return n, nil
}

func (k *Keyring) deleteParts(key string, from, to int) error {
	for i := from; i <= to; i++ {
		if err := k.delete(chunkKey(key, i)); err != nil {
			return err
		}
	}
	return nil
}

func (k *Keyring) get(key string) (string, bool, error) {
	v, err := keyring.Get(k.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Join(ErrBackendUnavailable, err)
	}
	return v, true, nil
}

func (k *Keyring) set(key, value string) error {
	if err := keyring.Set(k.service, key, value); err != nil {
		return errors.Join(ErrBackendUnavailable, err)
	}
	return nil
}

func (k *Keyring) delete(key string) error {
	err := keyring.Delete(k.service, key)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return errors.Join(ErrBackendUnavailable, err)
	}
	return nil
}

func chunkKey(key string, i int) string {
	return key + "." + strconv.Itoa(i)
}

func chunkCount(head string) (int, bool) {
	rest, ok := strings.CutPrefix(head, chunkMarker)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

var _ Store = (*Keyring)(nil)
