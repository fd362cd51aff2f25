package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"porter/internal/archive"
	"porter/internal/node"
	"porter/internal/progress"
	"porter/internal/store"
)

// Client is the slice of the node API a session needs.
type Client interface {
	CreateTransfer(ctx context.Context) (node.Handle, error)
	FetchStatus(ctx context.Context, handle node.Handle) (node.Status, error)
	UploadPayload(ctx context.Context, r io.Reader, size int64, opts node.UploadOpts) (string, error)
}

// Options configures one upload session.
type Options struct {
	// Path is the file or directory to upload.
	Path string
	// Directory selects a collection upload of the whole tree at Path.
	Directory bool
	// AllocationID is the storage allocation credential; must be
	// non-empty before any network call is made.
	AllocationID string
	// PollInterval is the status poll cadence.
	PollInterval time.Duration
	// SyncWait bounds the post-upload sync polling phase.
	SyncWait time.Duration
}

// Session drives one upload from path to content address: it creates a
// transfer handle, streams the payload, polls propagation counters in
// parallel and reconciles them into the update stream. Sessions are
// single-use. Multiple sessions may run concurrently; they share only
// the metadata store.
type Session struct {
	client   Client
	store    *store.Store
	packager *archive.Packager
	logger   *slog.Logger
	opts     Options

	mu       sync.Mutex
	state    State
	detached bool
	handle   node.Handle
	result   Result

	updates       chan Update
	updatesClosed bool
	done          chan struct{}

	totalSize int64
	tracker   *progress.Tracker
}

type payload struct {
	name       string
	size       int64
	collection bool
	entryPoint string
	manifest   *archive.Manifest // set for directory uploads
	artifact   *archive.Artifact // set for directory uploads
	open       func() (io.ReadCloser, error)
}

type uploadOutcome struct {
	address string
	err     error
}

// New creates a session. Call Start to run it; consume Updates until the
// channel closes, then read Result.
func New(client Client, st *store.Store, packager *archive.Packager, logger *slog.Logger, opts Options) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		client:   client,
		store:    st,
		packager: packager,
		logger:   logger,
		opts:     opts,
		state:    StateInitializing,
		updates:  make(chan Update, 16),
		done:     make(chan struct{}),
	}
}

// Updates is the stream of progress events. It closes when the session
// reaches a terminal state or is detached.
func (s *Session) Updates() <-chan Update {
	return s.updates
}

// Done closes once all session work has settled, including work that
// kept running in the background after a detach.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// State reports the current lifecycle stage. A detached session reports
// StateDetached until its background work settles.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detached && !s.state.terminal() {
		return StateDetached
	}
	return s.state
}

// Handle returns the transfer handle, empty until one has been issued.
func (s *Session) Handle() node.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// Result returns the terminal outcome. Only meaningful after Updates
// has closed (or Done, for a detached session).
func (s *Session) Result() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Detach stops observation: the update stream closes immediately and no
// further events are produced, but in-flight network calls run to
// natural completion and their results still reach the metadata store.
// Detaching is only meaningful while transferring or syncing; at any
// other time it is a no-op.
func (s *Session) Detach() {
	s.mu.Lock()
	if s.state != StateTransferring && s.state != StateSyncing {
		s.mu.Unlock()
		return
	}
	s.detached = true
	s.mu.Unlock()

	s.logger.Info("session detached, upload continues in background", "handle", s.handle)
	s.closeUpdates()
}

// Start validates preconditions, creates the transfer and writes the
// initial metadata record, then launches the payload transfer and the
// polling loop. A non-nil error means nothing is running and no
// transfer was created beyond what the error implies; the update
// channel is closed either way.
func (s *Session) Start(ctx context.Context) error {
	if s.opts.AllocationID == "" {
		return s.abort(fmt.Errorf("%w: storage allocation id is empty", node.ErrPrecondition))
	}

	pl, err := s.prepare(ctx)
	if err != nil {
		return s.abort(err)
	}
	s.totalSize = pl.size
	s.tracker = progress.NewTracker(pl.size)

	s.setState(StateCreatingTransfer)
	handle, err := s.client.CreateTransfer(ctx)
	if err != nil {
		if pl.artifact != nil {
			pl.artifact.Remove()
		}
		return s.abort(fmt.Errorf("create transfer: %w", err))
	}

	s.mu.Lock()
	s.handle = handle
	s.result.Handle = handle
	s.mu.Unlock()
	s.logger.Info("transfer created", "handle", handle, "name", pl.name, "size", pl.size)

	if err := s.store.Put(handle, initialUpdate(s.opts.AllocationID, pl)); err != nil {
		if pl.artifact != nil {
			pl.artifact.Remove()
		}
		return s.abort(fmt.Errorf("record transfer: %w", err))
	}

	go s.run(ctx, pl)
	return nil
}

// prepare stats the payload and, for directories, scans and packs the
// tree. No network traffic happens here.
func (s *Session) prepare(ctx context.Context) (*payload, error) {
	if !s.opts.Directory {
		fi, err := os.Stat(s.opts.Path)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", s.opts.Path, err)
		}
		if fi.IsDir() {
			return nil, fmt.Errorf("%s is a directory, expected a file", s.opts.Path)
		}
		path := s.opts.Path
		return &payload{
			name: filepath.Base(path),
			size: fi.Size(),
			open: func() (io.ReadCloser, error) { return os.Open(path) },
		}, nil
	}

	manifest, err := s.packager.Scan(s.opts.Path)
	if err != nil {
		return nil, err
	}
	if manifest.FileCount() == 0 {
		return nil, fmt.Errorf("%w: directory %s contains no files", node.ErrPrecondition, s.opts.Path)
	}

	artifact, err := s.packager.Pack(ctx, s.opts.Path, manifest)
	if err != nil {
		return nil, err
	}
	return &payload{
		name:       filepath.Base(s.opts.Path),
		size:       artifact.Size,
		collection: true,
		entryPoint: manifest.EntryPoint,
		artifact:   artifact,
		open:       func() (io.ReadCloser, error) { return artifact.Open() },
		manifest:   manifest,
	}, nil
}

// run owns the session from the transferring state onwards. The payload
// transfer runs in its own goroutine while the poll ticker feeds the
// reconciler; the two only meet here.
func (s *Session) run(ctx context.Context, pl *payload) {
	defer close(s.done)
	defer s.closeUpdates()
	if pl.artifact != nil {
		defer pl.artifact.Remove()
	}

	s.setState(StateTransferring)

	uploadDone := make(chan uploadOutcome, 1)
	go s.transferPayload(ctx, pl, uploadDone)

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	var syncDeadline <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			s.fail(ctx.Err())
			return

		case out := <-uploadDone:
			uploadDone = nil
			if out.err != nil {
				s.fail(fmt.Errorf("upload payload: %w", out.err))
				return
			}
			if err := s.store.Put(s.handle, store.Update{Address: store.String(out.address)}); err != nil {
				s.fail(fmt.Errorf("record address: %w", err))
				return
			}
			s.mu.Lock()
			s.result.Address = out.address
			s.mu.Unlock()
			s.logger.Info("payload transfer finished", "handle", s.handle, "address", out.address)

			s.setState(StateSyncing)
			if s.opts.SyncWait == 0 {
				s.complete(false)
				return
			}
			syncDeadline = time.After(s.opts.SyncWait)

		case <-syncDeadline:
			s.complete(false)
			return

		case <-ticker.C:
			st, err := s.client.FetchStatus(ctx, s.handle)
			if err != nil {
				// A flaky poll never fails the upload; try again next tick.
				s.logger.Debug("status poll failed", "handle", s.handle, "err", err)
				continue
			}
			snap := s.tracker.Update(st)
			s.emit(snap)
			if uploadDone == nil && st.Split > 0 && st.Synced >= st.Split {
				s.complete(true)
				return
			}
		}
	}
}

func (s *Session) transferPayload(ctx context.Context, pl *payload, out chan<- uploadOutcome) {
	r, err := pl.open()
	if err != nil {
		out <- uploadOutcome{err: err}
		return
	}
	defer r.Close()

	address, err := s.client.UploadPayload(ctx, r, pl.size, node.UploadOpts{
		Name:         pl.name,
		AllocationID: s.opts.AllocationID,
		Transfer:     s.handle,
		Collection:   pl.collection,
		EntryPoint:   pl.entryPoint,
	})
	out <- uploadOutcome{address: address, err: err}
}

// abort finalizes a session that never got past Start.
func (s *Session) abort(err error) error {
	s.mu.Lock()
	s.state = StateFailed
	s.result.Err = err
	s.mu.Unlock()
	s.closeUpdates()
	close(s.done)
	return err
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	s.result.Err = err
	s.mu.Unlock()
	s.logger.Error("upload failed", "handle", s.handle, "err", err)
	s.setState(StateFailed)
}

func (s *Session) complete(synced bool) {
	s.mu.Lock()
	s.result.Synced = synced
	s.mu.Unlock()
	s.logger.Info("upload completed", "handle", s.handle, "synced", synced)
	s.setState(StateCompleted)
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	detached := s.detached
	var snap progress.Snapshot
	if s.tracker != nil {
		snap = s.tracker.Current()
	}
	s.mu.Unlock()

	if detached {
		return
	}
	if st == StateCompleted {
		snap.Percent = 100
		snap.Bytes = s.totalSize
	}
	s.send(Update{
		State:     st,
		Phase:     snap.Phase,
		Percent:   snap.Percent,
		Bytes:     snap.Bytes,
		TotalSize: s.totalSize,
	})
}

func (s *Session) emit(snap progress.Snapshot) {
	s.mu.Lock()
	st := s.state
	detached := s.detached
	s.mu.Unlock()
	if detached {
		return
	}
	s.send(Update{
		State:     st,
		Phase:     snap.Phase,
		Percent:   snap.Percent,
		Bytes:     snap.Bytes,
		TotalSize: s.totalSize,
	})
}

// send never blocks the engine: an observer that has fallen behind
// misses intermediate snapshots rather than stalling the poll loop.
// The lock keeps sends and the close serial, so a detach racing the
// poll loop cannot send on a closed channel.
func (s *Session) send(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updatesClosed {
		return
	}
	select {
	case s.updates <- u:
	default:
	}
}

func (s *Session) closeUpdates() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updatesClosed {
		return
	}
	s.updatesClosed = true
	close(s.updates)
}

func initialUpdate(allocationID string, pl *payload) store.Update {
	u := store.Update{
		Name:         store.String(pl.name),
		CreatedAt:    store.Time(time.Now().UTC()),
		AllocationID: store.String(allocationID),
		Size:         store.Int64(pl.size),
	}
	if pl.collection {
		u.IsCollection = store.Bool(true)
		u.FileCount = store.Int(pl.manifest.FileCount())
		u.Entries = pl.manifest.Entries
		u.EntryPoint = store.String(pl.entryPoint)
	}
	return u
}
