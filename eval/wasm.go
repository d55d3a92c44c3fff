package eval

import (
	"encoding/json"

	"github.com/bytecodealliance/wasmtime-go/v14"

	"github.com/permaweb/ao-cu/cuerr"
	"github.com/permaweb/ao-cu/modcache"
)

// WasmtimeEvaluator is the default Evaluator. Every Evaluate call
// compiles the module afresh and instantiates it in a new
// *wasmtime.Store, so no instance is shared between calls (a
// *wasmtime.Instance is not safe for concurrent use) and one evaluator
// can serve every worker; compiled modules are not cached between
// calls. It owns its own *wasmtime.Engine so that compiled modules
// never cross engine boundaries.
//
// The exact message<->linear-memory calling convention is the WASM ABI
// spec.md §1 puts out of scope; this implementation assumes the
// conventional export surface most AssemblyScript/emscripten-style
// modules expose: an "alloc(len) -> ptr" export to reserve scratch
// space, a "handle(ptr, len) -> ptr" export that runs the message and
// returns a pointer to a length-prefixed (4-byte little-endian) result
// buffer, and linear memory exported as "memory".
type WasmtimeEvaluator struct {
	engine  *wasmtime.Engine
	modules *modcache.Cache
}

// NewWasmtimeEvaluator builds an Evaluator backed by modules, with its
// own wasmtime.Engine.
func NewWasmtimeEvaluator(modules *modcache.Cache) *WasmtimeEvaluator {
	cfg := wasmtime.NewConfig()
	cfg.SetConsumeFuel(true)
	return &WasmtimeEvaluator{engine: wasmtime.NewEngineWithConfig(cfg), modules: modules}
}

type wasmMessage struct {
	ProcessID    string `json:"process_id"`
	MessageID    string `json:"message_id,omitempty"`
	Tags         []Tag  `json:"tags"`
	Data         []byte `json:"data"`
	Timestamp    int64  `json:"timestamp"`
	BlockHeight  int64  `json:"block_height"`
	Epoch        int64  `json:"epoch"`
	Nonce        int64  `json:"nonce"`
	IsAssignment bool   `json:"is_assignment,omitempty"`
	Cron         string `json:"cron,omitempty"`
}

type wasmResult struct {
	Memory      []byte   `json:"memory"`
	Messages    []RawMsg `json:"messages,omitempty"`
	Spawns      []RawMsg `json:"spawns,omitempty"`
	Assignments []string `json:"assignments,omitempty"`
	OutputData  string   `json:"output_data,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// Evaluate compiles and instantiates args.ModuleID fresh,
// seeds it with args.Memory, runs one message through the conventional
// handle() export, and returns the module's updated memory.
func (e *WasmtimeEvaluator) Evaluate(args EvalArgs) (EvalResult, error) {
	cm, err := e.modules.Load(args.ModuleID)
	if err != nil {
		return EvalResult{}, err
	}
	mod, err := modcache.Compile(e.engine, cm)
	if err != nil {
		return EvalResult{}, err
	}

	store := wasmtime.NewStore(e.engine)
	if args.Options.ComputeMaxLimit > 0 {
		store.SetFuel(uint64(args.Options.ComputeMaxLimit))
	}
	store.Limiter(args.Options.MemoryMaxLimit, -1, -1, -1, -1)

	linker := wasmtime.NewLinker(e.engine)
	if err := linker.DefineWasi(); err != nil {
		return EvalResult{}, cuerr.Wrap(cuerr.KindFatal, err, "defining wasi imports for module %s", args.ModuleID)
	}
	wasiCfg := wasmtime.NewWasiConfig()
	store.SetWasi(wasiCfg)

	instance, err := linker.Instantiate(store, mod)
	if err != nil {
		return EvalResult{}, cuerr.Wrap(cuerr.KindEvaluation, err, "instantiating module %s", args.ModuleID)
	}

	memExport := instance.GetExport(store, "memory")
	if memExport == nil || memExport.Memory() == nil {
		return EvalResult{}, cuerr.Evaluation("module %s exports no linear memory", args.ModuleID)
	}
	mem := memExport.Memory()

	allocFn := instance.GetFunc(store, "alloc")
	handleFn := instance.GetFunc(store, "handle")
	if allocFn == nil || handleFn == nil {
		return EvalResult{}, cuerr.Evaluation("module %s is missing the alloc/handle export surface", args.ModuleID)
	}

	if len(args.Memory) > 0 {
		const wasmPageSize = 65536
		needed := int(mem.DataSize(store))
		if len(args.Memory) > needed {
			pages := (len(args.Memory) - needed + wasmPageSize - 1) / wasmPageSize
			if _, err := mem.Grow(store, uint64(pages)); err != nil {
				return EvalResult{}, cuerr.Wrap(cuerr.KindEvaluation, err, "module %s: growing memory to restore prior state", args.ModuleID)
			}
		}
		copy(mem.UnsafeData(store), args.Memory)
	}

	payload, err := json.Marshal(wasmMessage{
		ProcessID: args.ProcessID, MessageID: args.MessageID, Tags: args.Tags, Data: args.Data,
		Timestamp: args.Timestamp, BlockHeight: args.BlockHeight, Epoch: args.Epoch, Nonce: args.Nonce,
		IsAssignment: args.IsAssignment, Cron: args.Cron,
	})
	if err != nil {
		return EvalResult{}, cuerr.Wrap(cuerr.KindFatal, err, "encoding message for module %s", args.ModuleID)
	}

	ptrAny, err := allocFn.Call(store, int32(len(payload)))
	if err != nil {
		return EvalResult{}, cuerr.Wrap(cuerr.KindEvaluation, err, "module %s: alloc failed", args.ModuleID)
	}
	ptr, _ := ptrAny.(int32)
	data := mem.UnsafeData(store)
	copy(data[ptr:], payload)

	resultPtrAny, err := handleFn.Call(store, ptr, int32(len(payload)))
	if err != nil {
		// A trap (out-of-gas, unreachable, OOB access, ...) is a
		// per-message evaluation failure, not a pipeline failure: it
		// surfaces in Output.Error so the caller persists the row and
		// moves on to the next message (spec.md: "out-of-gas -> error
		// field, not a crash").
		return EvalResult{Memory: args.Memory, Output: Output{Error: err.Error()}}, nil
	}
	resultPtr, _ := resultPtrAny.(int32)

	data = mem.UnsafeData(store)
	if int(resultPtr)+4 > len(data) {
		return EvalResult{}, cuerr.Evaluation("module %s returned an out-of-bounds result pointer", args.ModuleID)
	}
	resultLen := int32(data[resultPtr]) | int32(data[resultPtr+1])<<8 | int32(data[resultPtr+2])<<16 | int32(data[resultPtr+3])<<24
	start := int(resultPtr) + 4
	if start+int(resultLen) > len(data) {
		return EvalResult{}, cuerr.Evaluation("module %s returned a truncated result buffer", args.ModuleID)
	}
	var res wasmResult
	if err := json.Unmarshal(data[start:start+int(resultLen)], &res); err != nil {
		return EvalResult{}, cuerr.Wrap(cuerr.KindEvaluation, err, "decoding result from module %s", args.ModuleID)
	}

	gasUsed := int64(0)
	if args.Options.ComputeMaxLimit > 0 {
		if remaining, fuelErr := store.GetFuel(); fuelErr == nil {
			gasUsed = args.Options.ComputeMaxLimit - int64(remaining)
		}
	}

	return EvalResult{
		Memory: res.Memory,
		Output: Output{
			Messages:    res.Messages,
			Spawns:      res.Spawns,
			Assignments: res.Assignments,
			OutputData:  res.OutputData,
			Error:       res.Error,
		},
		GasUsed: gasUsed,
	}, nil
}
