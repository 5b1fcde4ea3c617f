package command

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/reactq/internal/config"
	"github.com/yndnr/reactq/internal/storage/snapshot"
)

// FileInfo is a checkpoint file of the snapshot backend.
type FileInfo struct {
	ID      string `json:"id" yaml:"id"`
	Kind    string `json:"kind" yaml:"kind"`
	Parent  string `json:"parent,omitempty" yaml:"parent,omitempty"`
	Created string `json:"created" yaml:"created"`
	Items   int    `json:"items" yaml:"items"`
	Deletes int    `json:"deletes" yaml:"deletes"`
	Size    int64  `json:"size" yaml:"size"`
	InChain bool   `json:"in_chain" yaml:"in_chain"`
	Path    string `json:"path" table:"-" yaml:"path"`
}

// FilesCommand lists checkpoint files of a snapshot store.
func FilesCommand() *cli.Command {
	return &cli.Command{
		Name:   "files",
		Usage:  "List checkpoint files of a snapshot store",
		Action: withSession(files),
	}
}

// PruneCommand applies the retention policy of a snapshot store.
func PruneCommand() *cli.Command {
	return &cli.Command{
		Name:   "prune",
		Usage:  "Delete checkpoint files outside the retention policy",
		Action: withSession(prune),
	}
}

func snapshotStore(s *session) (*snapshot.Store, error) {
	st, ok := s.store.(*snapshot.Store)
	if !ok {
		return nil, fmt.Errorf("store backend is %s, want %s", s.cfg.Store.Backend, config.BackendSnapshot)
	}
	return st, nil
}

func files(_ *cli.Context, s *session) error {
	st, err := snapshotStore(s)
	if err != nil {
		return err
	}
	out, err := listFiles(st)
	if err != nil {
		return err
	}
	return s.emit(out)
}

func prune(_ *cli.Context, s *session) error {
	st, err := snapshotStore(s)
	if err != nil {
		return err
	}
	if err := st.Prune(); err != nil {
		return err
	}
	out, err := listFiles(st)
	if err != nil {
		return err
	}
	return s.emit(out)
}

// listFiles merges the directory listing with the header data of the
// files in the current chain.
func listFiles(st *snapshot.Store) ([]FileInfo, error) {
	chain := map[string]*snapshot.Info{}
	for _, info := range st.Chain() {
		chain[info.ID] = info
	}

	infos, err := snapshot.List(st.Dir())
	if err != nil {
		return nil, err
	}
	out := make([]FileInfo, 0, len(infos))
	for _, info := range infos {
		f := FileInfo{
			ID:      info.ID,
			Kind:    info.KindName,
			Created: time.UnixMilli(info.CreatedAt).UTC().Format(time.RFC3339),
			Size:    info.Size,
			Path:    info.Path,
		}
		if c, ok := chain[info.ID]; ok {
			f.InChain = true
			f.Parent = c.Parent
			f.Items = c.ItemCount
			f.Deletes = c.DeleteCount
		}
		out = append(out, f)
	}
	return out, nil
}
