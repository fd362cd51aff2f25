package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"porter/internal/archive"
	"porter/internal/config"
	"porter/internal/node"
	"porter/internal/session"
	"porter/internal/store"
)

// TransferInfo joins one node-side transfer with the locally persisted
// record, when one exists.
type TransferInfo struct {
	Handle node.Handle
	Status node.Status
	Record *store.UploadRecord
}

// App wires the node client, metadata store and packager together and
// exposes the operations the interactive layer consumes.
type App struct {
	cfg      *config.Config
	client   *node.Client
	store    *store.Store
	packager *archive.Packager
	logger   *slog.Logger
}

// New creates the application from configuration, opening (and if
// needed migrating) the metadata store.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	st, err := store.Open(cfg.StorePath(), cfg.LegacyStorePaths()...)
	if err != nil {
		return nil, fmt.Errorf("open metadata store: %w", err)
	}
	return &App{
		cfg:      cfg,
		client:   node.NewClient(cfg.API),
		store:    st,
		packager: archive.NewPackager(cfg.TempDir),
		logger:   logger,
	}, nil
}

// Store exposes the metadata store for read access.
func (a *App) Store() *store.Store {
	return a.store
}

// StartFileUpload starts a session uploading a single file. The session
// is already running when this returns without error.
func (a *App) StartFileUpload(ctx context.Context, path string) (*session.Session, error) {
	return a.start(ctx, path, false)
}

// StartDirectoryUpload starts a session uploading a directory tree as a
// collection.
func (a *App) StartDirectoryUpload(ctx context.Context, path string) (*session.Session, error) {
	return a.start(ctx, path, true)
}

func (a *App) start(ctx context.Context, path string, directory bool) (*session.Session, error) {
	s := session.New(a.client, a.store, a.packager, a.logger, session.Options{
		Path:         path,
		Directory:    directory,
		AllocationID: a.cfg.AllocationID,
		PollInterval: a.cfg.PollInterval,
		SyncWait:     a.cfg.SyncWait,
	})
	if err := s.Start(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// ListKnownTransfers returns every transfer the node knows about joined
// with local records, newest first. When the node is unreachable the
// error matches node.ErrUnreachable so the caller can keep a persistent
// warning up instead of flashing one-shot messages.
func (a *App) ListKnownTransfers(ctx context.Context) ([]TransferInfo, error) {
	items, err := a.client.ListTransfers(ctx)
	if err != nil {
		return nil, err
	}

	infos := make([]TransferInfo, 0, len(items))
	for _, item := range items {
		info := TransferInfo{Handle: item.ID, Status: item.Status}
		if rec, ok := a.store.Get(item.ID); ok {
			r := rec
			info.Record = &r
		}
		infos = append(infos, info)
	}

	// Newest first; transfers the store knows nothing about sort by the
	// node's own (already newest-first) order.
	sort.SliceStable(infos, func(i, j int) bool {
		ri, rj := infos[i].Record, infos[j].Record
		if ri == nil || rj == nil {
			return false
		}
		return ri.CreatedAt.After(rj.CreatedAt)
	})
	return infos, nil
}

// Record returns the persisted record for handle.
func (a *App) Record(handle node.Handle) (store.UploadRecord, bool) {
	return a.store.Get(handle)
}
