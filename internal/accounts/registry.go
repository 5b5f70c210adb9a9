package accounts

import (
	"log"
	"sync"

	"github.com/gofrs/flock"
)

// Registry reads the account configuration document and serializes writers,
// in process and across processes sharing the file. Readers never observe a
// half-written file since writers replace it atomically.
type Registry struct {
	path        string
	accountsDir string

	mu    sync.RWMutex
	flock *flock.Flock

	// busy reports whether a refresh is in flight; edits are refused while it does.
	busy func() bool
}

// NewRegistry creates a Registry over the config document at path.
func NewRegistry(path, accountsDir string) *Registry {
	return &Registry{
		path:        path,
		accountsDir: accountsDir,
		flock:       flock.New(path + ".lock"),
	}
}

// Path returns the config document path.
func (r *Registry) Path() string {
	return r.path
}

// AccountsDir returns the root of the per-account credential homes.
func (r *Registry) AccountsDir() string {
	return r.accountsDir
}

// SetBusyCheck installs the predicate consulted before every edit.
func (r *Registry) SetBusyCheck(busy func() bool) {
	r.mu.Lock()
	r.busy = busy
	r.mu.Unlock()
}

// Load returns the accounts selected for a refresh, in document order.
// Entries without a label are dropped first, then the onlyLabel filter is
// applied, then disabled entries unless includeDisabled is set.
func (r *Registry) Load(onlyLabel string, includeDisabled bool) ([]Descriptor, error) {
	doc, err := r.read()
	if err != nil {
		return nil, err
	}
	list, err := doc.entries()
	if err != nil {
		return nil, withPath(err, r.path)
	}
	if len(list) == 0 {
		return nil, configErrorf(ConfigEmpty, r.path, "config.accounts must be a non-empty array", nil)
	}

	seen := make(map[string]struct{}, len(list))
	var out []Descriptor
	for _, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		d, ok := descriptorFromEntry(entry)
		if !ok {
			continue
		}
		if onlyLabel != "" && d.Label != onlyLabel {
			continue
		}
		if !d.Enabled && !includeDisabled {
			continue
		}
		if !ValidLabel(d.Label) {
			log.Printf("[Accounts] ⚠️ skipping account with unsafe label %q", d.Label)
			continue
		}
		if _, dup := seen[d.Label]; dup {
			log.Printf("[Accounts] ⚠️ duplicate label %q, keeping the first entry", d.Label)
			continue
		}
		seen[d.Label] = struct{}{}
		out = append(out, d)
	}

	if onlyLabel != "" && len(out) == 0 {
		return nil, configErrorf(ConfigNotFound, r.path, "label not found (or disabled): "+onlyLabel, nil)
	}
	return out, nil
}

// Inventory returns every labelled entry, enabled or not, for the sink's
// account directory. It accepts account_label as a label alias.
func (r *Registry) Inventory() ([]Descriptor, error) {
	doc, err := r.read()
	if err != nil {
		return nil, err
	}
	list, err := doc.entries()
	if err != nil {
		return nil, withPath(err, r.path)
	}

	out := make([]Descriptor, 0, len(list))
	for _, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		label := stringField(entry, "label", "account_label")
		if label == "" {
			continue
		}
		providerName := stringField(entry, "provider")
		if providerName == "" {
			providerName = string(ProviderCodex)
		}
		out = append(out, Descriptor{
			Label:            label,
			Provider:         ResolveProvider(providerName),
			ProviderName:     providerName,
			Enabled:          enabledField(entry),
			ExpectedEmail:    stringField(entry, "expected_email"),
			ExpectedPlanType: stringField(entry, "expected_planType", "expected_plan_type"),
			Note:             stringField(entry, "note"),
		})
	}

	if len(list) > 0 && len(out) == 0 {
		return nil, configErrorf(ConfigMalformed, r.path, "no valid accounts found in config", nil)
	}
	return out, nil
}

func (r *Registry) read() (*document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	unlock := r.rlockFile()
	defer unlock()
	return readDocument(r.path)
}

// update runs fn against the current document under the write lock and
// persists the result when fn succeeds.
func (r *Registry) update(fn func(doc *document) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busy != nil && r.busy() {
		return ErrRefreshRunning
	}
	unlock := r.lockFile()
	defer unlock()

	doc, err := readDocument(r.path)
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return writeDocument(r.path, doc)
}

// lockFile takes the cross-process writer lock next to the document. Lock
// failures (read-only config mounts) degrade to in-process locking only.
func (r *Registry) lockFile() func() {
	if err := r.flock.Lock(); err != nil {
		log.Printf("[Accounts] config file lock unavailable: %v", err)
		return func() {}
	}
	return func() {
		if err := r.flock.Unlock(); err != nil {
			log.Printf("[Accounts] failed to release config file lock: %v", err)
		}
	}
}

// rlockFile takes a shared lock so readers wait out writers in other
// processes. Each reader uses its own handle: concurrent readers in this
// process must not release each other's lock.
func (r *Registry) rlockFile() func() {
	fl := flock.New(r.flock.Path())
	if err := fl.RLock(); err != nil {
		log.Printf("[Accounts] config file read lock unavailable: %v", err)
		return func() {}
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			log.Printf("[Accounts] failed to release config file read lock: %v", err)
		}
	}
}

func withPath(err error, path string) error {
	if ce, ok := err.(*ConfigError); ok && ce.Path == "" {
		ce.Path = path
	}
	return err
}
