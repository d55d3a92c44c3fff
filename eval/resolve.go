package eval

import (
	"github.com/permaweb/ao-cu/cuerr"
	"github.com/permaweb/ao-cu/store"
	"github.com/permaweb/ao-cu/suclient"
)

func convertTags(tags []suclient.Tag) []store.TagKV {
	out := make([]store.TagKV, len(tags))
	for i, t := range tags {
		out[i] = store.TagKV{Name: t.Name, Value: t.Value}
	}
	return out
}

// resolveProcess returns the persisted process row, fetching and
// persisting it from the SU on first sight (spec.md §4.A/§4.E).
func resolveProcess(deps Deps, processID string) (*store.Process, error) {
	if p, err := deps.Store.FindProcess(processID); err == nil {
		return p, nil
	} else if !cuerr.Is(err, cuerr.KindNotFound) {
		return nil, err
	}

	meta, err := deps.SU.LoadProcess(processID)
	if err != nil {
		return nil, err
	}
	p := &store.Process{
		ID:        meta.ID,
		Owner:     meta.Owner,
		Tags:      convertTags(meta.Tags),
		Signature: meta.Signature,
		Block:     store.BlockRef{Height: meta.Block.Height, Timestamp: meta.Block.Timestamp},
		ModuleID:  meta.ModuleID,
	}
	if err := deps.Store.SaveProcess(p); err != nil {
		return nil, err
	}
	return p, nil
}

// resolveModule returns the persisted module row, fetching and
// persisting it from the SU on first sight.
func resolveModule(deps Deps, moduleID string) (*store.Module, error) {
	if m, err := deps.Store.FindModule(moduleID); err == nil {
		return m, nil
	} else if !cuerr.Is(err, cuerr.KindNotFound) {
		return nil, err
	}

	meta, err := deps.SU.LoadModule(moduleID)
	if err != nil {
		return nil, err
	}
	m := &store.Module{
		ID:           meta.ID,
		Owner:        meta.Owner,
		Tags:         convertTags(meta.Tags),
		ModuleFormat: meta.ModuleFormat,
		ModuleOptions: store.ModuleOptions{
			MemoryLimit:  meta.MemoryLimit,
			ComputeLimit: meta.ComputeLimit,
			Extensions:   meta.Extensions,
		},
	}
	if err := deps.Store.SaveModule(m); err != nil {
		return nil, err
	}
	return m, nil
}
