package source

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/listsync/internal/object"
)

// ErrInvalidContinue is returned when a continuation token cannot be decoded.
var ErrInvalidContinue = errors.New("invalid continue token")

// Static is an in-memory Source over a mutable object set.
//
// Pages are served in (namespace, name) order and continuation tokens encode
// the key of the last object returned, so objects added or removed between
// pages shift nothing already served. This mirrors how an API server resumes
// a list from an etcd key.
//
// Thread-safety: all methods are safe for concurrent use.
type Static struct {
	mu      sync.RWMutex
	objects map[string]object.Tracked // uid -> object
	fetches int
}

// NewStatic creates a Static source seeded with objs.
func NewStatic(objs ...object.Tracked) *Static {
	s := &Static{objects: make(map[string]object.Tracked, len(objs))}
	for _, o := range objs {
		s.objects[o.UID] = o
	}
	return s
}

// Put inserts or replaces an object, simulating a server-side write.
func (s *Static) Put(o object.Tracked) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[o.UID] = o
}

// Delete removes an object by UID, simulating a server-side delete.
func (s *Static) Delete(uid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, uid)
}

// Fetches returns how many pages have been served.
func (s *Static) Fetches() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetches
}

// FetchPage implements Source.
func (s *Static) FetchPage(ctx context.Context, req Request) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}

	after, err := decodeContinue(req.Continue)
	if err != nil {
		return Page{}, err
	}

	s.mu.Lock()
	s.fetches++
	candidates := make([]object.Tracked, 0, len(s.objects))
	for _, o := range s.objects {
		if req.Namespace != AllNamespaces && o.Namespace != req.Namespace {
			continue
		}
		if after != "" && strings.Compare(sortKey(o), after) <= 0 {
			continue
		}
		candidates = append(candidates, o)
	}
	s.mu.Unlock()

	slices.SortFunc(candidates, func(a, b object.Tracked) int {
		return strings.Compare(sortKey(a), sortKey(b))
	})

	if req.Limit <= 0 || len(candidates) <= req.Limit {
		return Page{Items: candidates}, nil
	}

	items := candidates[:req.Limit]
	return Page{
		Items:    items,
		Continue: encodeContinue(sortKey(items[len(items)-1])),
	}, nil
}

// sortKey is unambiguous because names and namespaces never contain NUL.
func sortKey(o object.Tracked) string {
	return o.Namespace + "\x00" + o.Name
}

func encodeContinue(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

func decodeContinue(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || !strings.Contains(string(raw), "\x00") {
		return "", fmt.Errorf("%w: %q", ErrInvalidContinue, token)
	}
	return string(raw), nil
}
