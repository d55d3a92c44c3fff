package eval

import (
	"context"
	"encoding/base64"
	"os"
	"sync"

	"github.com/permaweb/ao-cu/ckpt"
	"github.com/permaweb/ao-cu/culog"
	"github.com/permaweb/ao-cu/ordinate"
	"github.com/permaweb/ao-cu/store"
	"github.com/permaweb/ao-cu/suclient"
	"github.com/permaweb/ao-cu/wpool"
)

var log = culog.New(os.Stdout, "eval")

// Request describes one evaluation run: crank processId forward from
// its latest reachable state up to and including the message at To.
type Request struct {
	ProcessID string
	To        ordinate.Ordinate
	DryRun    bool
}

// Result is the state reached at the end of a run.
type Result struct {
	ProcessID       string
	ModuleID        string
	Ordinate        ordinate.Ordinate
	Timestamp       int64
	GasUsed         int64
	MessagesApplied int
	LastOutput      store.EvalOutput
}

// Pipeline is the Evaluation Pipeline (spec.md §4.G): it owns per-process
// accumulated-gas bookkeeping for eager checkpoint triggering, layered
// on top of the otherwise-stateless Deps collaborators.
type Pipeline struct {
	deps Deps

	mu              sync.Mutex
	sinceCheckpoint map[string]int64
}

// New builds a Pipeline over deps.
func New(deps Deps) *Pipeline {
	return &Pipeline{deps: deps, sinceCheckpoint: make(map[string]int64)}
}

// Run resolves req.ProcessID's process and module, locates its latest
// reachable memory, streams every message up to req.To, and evaluates
// each one in turn on the matching worker pool (spec.md §4.G steps
// 1-7). A DryRun request never persists evaluations, never mutates the
// memory cache, and runs on the dry-run pool so it cannot starve live
// traffic.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	proc, err := resolveProcess(p.deps, req.ProcessID)
	if err != nil {
		return nil, err
	}
	if err := checkAccess(p.deps.Access, proc); err != nil {
		return nil, err
	}
	mod, err := resolveModule(p.deps, proc.ModuleID)
	if err != nil {
		return nil, err
	}

	if p.deps.Locator != nil {
		if _, err := p.deps.Locator.Resolve(proc.ID); err != nil {
			log.Warnf("locating scheduler for %s: %v", proc.ID, err)
		}
	}

	state, _, err := findLatestProcessMemoryBefore(p.deps, req.ProcessID, mod.ID, req.To)
	if err != nil {
		return nil, err
	}

	pool := p.deps.Pools.Primary
	if req.DryRun {
		pool = p.deps.Pools.DryRun
	}

	stream := p.deps.SU.LoadMessages(req.ProcessID, string(state.Ordinate), string(req.To))
	memory := state.Memory
	result := &Result{ProcessID: req.ProcessID, ModuleID: mod.ID, Ordinate: state.Ordinate, Timestamp: state.Timestamp, GasUsed: state.GasUsed}

	for {
		msg, ok, err := stream.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}

		if !req.DryRun && p.alreadyEvaluated(proc.ID, msg) {
			continue
		}

		evalRes, err := p.evaluateOne(ctx, pool, mod, memory, proc.ID, msg)
		if err != nil {
			return nil, err
		}

		memory = evalRes.Memory
		result.Ordinate = msg.Ordinate
		result.Timestamp = msg.Timestamp
		result.GasUsed += evalRes.GasUsed
		result.MessagesApplied++
		result.LastOutput = toStoreOutput(evalRes.Output)

		p.deps.Metrics.GasUsed.Add(float64(evalRes.GasUsed))
		p.deps.Metrics.EvaluationCounter.WithLabelValues(streamType(req.DryRun), messageType(msg), errorLabel(evalRes.Output.Error)).Inc()

		if !req.DryRun {
			if err := p.persist(proc.ID, msg, evalRes); err != nil {
				return nil, err
			}
			p.maybeCheckpoint(proc.ID, mod.ID, memory, msg, evalRes.GasUsed)
		}
	}

	if !req.DryRun {
		saveToMemoryCache(p.deps, proc.ID, mod.ID, MemoryState{Memory: memory, Ordinate: result.Ordinate, Timestamp: result.Timestamp, GasUsed: result.GasUsed})
	}
	return result, nil
}

func (p *Pipeline) alreadyEvaluated(processID string, msg suclient.Message) bool {
	if msg.DeepHash == "" && msg.MessageID == "" {
		return false
	}
	_, err := p.deps.Store.FindMessageBefore(store.FindMessageBeforeArgs{
		ProcessID:         processID,
		MessageID:         msg.MessageID,
		DeepHash:          msg.DeepHash,
		IsAssignedMessage: msg.IsAssignment,
		Epoch:             msg.Epoch,
		Nonce:             msg.Nonce,
	})
	return err == nil
}

func (p *Pipeline) evaluateOne(ctx context.Context, pool *wpool.Pool, mod *store.Module, memory []byte, processID string, msg suclient.Message) (EvalResult, error) {
	out, err := pool.Submit(ctx, wpool.Task{
		Prep: func() any {
			cloned := make([]byte, len(memory))
			copy(cloned, memory)
			return cloned
		},
		Execute: func(prepped any) (any, error) {
			res, err := p.deps.Evaluator.Evaluate(EvalArgs{
				ProcessID: processID,
				ModuleID:  mod.ID,
				Memory:    prepped.([]byte),
				Options:   ModuleOptions{MemoryMaxLimit: mod.ModuleOptions.MemoryLimit, ComputeMaxLimit: mod.ModuleOptions.ComputeLimit},
				MessageID: msg.MessageID, DeepHash: msg.DeepHash, Tags: convertEvalTags(msg.Tags), Data: msg.Data,
				Timestamp: msg.Timestamp, BlockHeight: msg.BlockHeight, Epoch: msg.Epoch, Nonce: msg.Nonce,
				Ordinate: msg.Ordinate, IsAssignment: msg.IsAssignment, Cron: msg.Cron,
			})
			return res, err
		},
	})
	if err != nil {
		return EvalResult{}, err
	}
	return out.(EvalResult), nil
}

func convertEvalTags(tags []suclient.Tag) []Tag {
	out := make([]Tag, len(tags))
	for i, t := range tags {
		out[i] = Tag{Name: t.Name, Value: t.Value}
	}
	return out
}

func (p *Pipeline) persist(processID string, msg suclient.Message, res EvalResult) error {
	e := &store.Evaluation{
		ProcessID:         processID,
		Ordinate:          msg.Ordinate,
		Cron:              msg.Cron,
		Timestamp:         msg.Timestamp,
		MessageID:         msg.MessageID,
		DeepHash:          msg.DeepHash,
		Output:            toStoreOutput(res.Output),
		GasUsed:           res.GasUsed,
		Epoch:             msg.Epoch,
		Nonce:             msg.Nonce,
		IsAssignedMessage: msg.IsAssignment,
	}
	return p.deps.Store.SaveEvaluation(e)
}

func toStoreOutput(o Output) store.EvalOutput {
	return store.EvalOutput{
		Messages:    toStoreRawMsgs(o.Messages),
		Spawns:      toStoreRawMsgs(o.Spawns),
		Assignments: toStoreAssignments(o.Assignments),
		OutputData:  o.OutputData,
		Error:       o.Error,
	}
}

func toStoreRawMsgs(in []RawMsg) []store.RawMsg {
	out := make([]store.RawMsg, len(in))
	for i, m := range in {
		out[i] = store.RawMsg{Target: m.Target, Data: base64.StdEncoding.EncodeToString(m.Data)}
	}
	return out
}

func toStoreAssignments(targets []string) []store.RawMsg {
	out := make([]store.RawMsg, len(targets))
	for i, t := range targets {
		out[i] = store.RawMsg{Target: t}
	}
	return out
}

// maybeCheckpoint fires a best-effort, fire-and-forget checkpoint save
// once processID's gas consumed since its last attempt crosses
// EagerCheckpointGasThreshold (spec.md §4.H), resetting the per-process
// counter regardless of whether the save eventually succeeds -- a
// failed eager checkpoint shouldn't retry on every subsequent message.
func (p *Pipeline) maybeCheckpoint(processID, moduleID string, memory []byte, msg suclient.Message, gasUsed int64) {
	if p.deps.EagerCheckpointGasThreshold <= 0 || p.deps.Checkpoints == nil {
		return
	}
	p.mu.Lock()
	p.sinceCheckpoint[processID] += gasUsed
	due := p.sinceCheckpoint[processID] >= p.deps.EagerCheckpointGasThreshold && p.deps.Checkpoints.ShouldCheckpoint(processID)
	if due {
		p.sinceCheckpoint[processID] = 0
	}
	p.mu.Unlock()
	if !due {
		return
	}

	memCopy := make([]byte, len(memory))
	copy(memCopy, memory)
	go func() {
		err := p.deps.Checkpoints.Save(ckpt.Input{
			ProcessID: processID, ModuleID: moduleID, Ordinate: msg.Ordinate, Timestamp: msg.Timestamp,
			BlockHeight: msg.BlockHeight, Epoch: msg.Epoch, Nonce: msg.Nonce, Memory: memCopy,
		})
		if err != nil {
			p.deps.Metrics.CheckpointsFailed.Inc()
			return
		}
		p.deps.Metrics.CheckpointsOK.Inc()
	}()
}

func streamType(dryRun bool) string {
	if dryRun {
		return "dryrun"
	}
	return "primary"
}

func messageType(msg suclient.Message) string {
	if msg.Cron != "" {
		return "cron"
	}
	if msg.IsAssignment {
		return "assignment"
	}
	return "message"
}

func errorLabel(errMsg string) string {
	if errMsg == "" {
		return "false"
	}
	return "true"
}
