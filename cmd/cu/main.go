// Command cu wires together the CU's components -- config, store,
// caches, checkpoint store, module loader, SU client, worker pools,
// metrics, the evaluation pipeline, and the root orchestrator -- and
// logs the wired orchestrator's healthcheck. Routing itself is out of
// scope (spec.md §1); this file stops at producing a *cu.CU and serves
// no routes or metrics handler.
package main

import (
	"crypto/ed25519"
	"encoding/hex"
	"os"
	"time"

	"github.com/permaweb/ao-cu/ckpt"
	"github.com/permaweb/ao-cu/cu"
	"github.com/permaweb/ao-cu/cucfg"
	"github.com/permaweb/ao-cu/culog"
	"github.com/permaweb/ao-cu/eval"
	"github.com/permaweb/ao-cu/hk"
	"github.com/permaweb/ao-cu/memcache"
	"github.com/permaweb/ao-cu/metrics"
	"github.com/permaweb/ao-cu/modcache"
	"github.com/permaweb/ao-cu/ordinate"
	"github.com/permaweb/ao-cu/store"
	"github.com/permaweb/ao-cu/suclient"
	"github.com/permaweb/ao-cu/wpool"
)

var log = culog.New(os.Stdout, "cu")

func main() {
	cfg, err := cucfg.Load(os.Getenv("CU_ENV_FILE"))
	if err != nil {
		log.Errorf("loading config: %v", err)
		os.Exit(1)
	}

	st, err := store.Open(cfg.Endpoints.DBURL)
	if err != nil {
		log.Errorf("opening store at %s: %v", cfg.Endpoints.DBURL, err)
		os.Exit(1)
	}
	defer st.Close()

	files, err := ckpt.NewFileStore(cfg.ProcessMemory.FileDir, cfg.Checkpoint.FileDirectory)
	if err != nil {
		log.Errorf("opening checkpoint/spill file store: %v", err)
		os.Exit(1)
	}

	go hk.DefaultHK.Run()
	defer hk.DefaultHK.Stop()

	memory := memcache.New(cfg.ProcessMemory.CacheMaxSize, cfg.ProcessMemory.CacheTTL, files)
	defer memory.Stop()

	checkpoints := ckpt.New(buildCheckpointDeps(cfg, st, files))

	modules := modcache.New(cfg.Workers.ModuleCacheMaxSize, cfg.Wasm.BinaryFileDirectory, cfg.Endpoints.ArweaveURL, 30*time.Second)
	modules.WarmScan()

	su := suclient.New(cfg.Endpoints.GraphQLURL, 30*time.Second, 3)

	pools := wpool.NewPools(cfg.MaxPrimary(), cfg.MaxDryRun(), cfg.Workers.DryRunMaxQueue)

	metricsReg := metrics.New()

	pipeline := eval.New(eval.Deps{
		Store:                       st,
		Memory:                      memory,
		Files:                       files,
		Checkpoints:                 checkpoints,
		Modules:                     modules,
		SU:                          su,
		Pools:                       pools,
		Metrics:                     metricsReg,
		Evaluator:                   eval.NewWasmtimeEvaluator(modules),
		EagerCheckpointGasThreshold: cfg.Checkpoint.EagerAccumulatedGasThreshold,
		Access: eval.Access{
			AllowOwners:       cfg.Access.AllowOwners,
			RestrictProcesses: cfg.Access.RestrictProcesses,
			AllowProcesses:    cfg.Access.AllowProcesses,
		},
	})

	orchestrator := cu.New(cu.Deps{
		Pipeline:      pipeline,
		Store:         st,
		Memory:        memory,
		Files:         files,
		Checkpoints:   checkpoints,
		SU:            su,
		Pools:         pools,
		Metrics:       metricsReg,
		WalletAddress: walletAddress(cfg),
	})

	runDemo(orchestrator)
}

func buildCheckpointDeps(cfg *cucfg.Config, st *store.Store, files *ckpt.FileStore) ckpt.Deps {
	ignoreTxIDs := make(map[string]bool, len(cfg.Checkpoint.IgnoreArweaveCheckpoints))
	for _, id := range cfg.Checkpoint.IgnoreArweaveCheckpoints {
		ignoreTxIDs[id] = true
	}
	ignoreProcesses := make(map[string]bool, len(cfg.Checkpoint.ProcessIgnoreArweave))
	for _, id := range cfg.Checkpoint.ProcessIgnoreArweave {
		ignoreProcesses[id] = true
	}

	var signer ckpt.Signer = ckpt.NoopSigner{}
	if priv := loadWalletKey(cfg); priv != nil {
		signer = ckpt.NewEd25519Signer(priv)
	}

	return ckpt.Deps{
		Files:    files,
		Gateway:  ckpt.NewHTTPGateway(cfg.Endpoints.CheckpointGraphQL, cfg.Endpoints.ArweaveURL, 30*time.Second),
		Signer:   signer,
		Uploader: ckpt.NewHTTPUploader(cfg.Endpoints.UploaderURL, 30*time.Second),
		RecordWrite: func(processID string, o ordinate.Ordinate, timestamp int64, file, txID string) error {
			return st.WriteCheckpointRecord(store.CheckpointRecord{ProcessID: processID, Ordinate: o, Timestamp: timestamp, File: file, TxID: txID})
		},
		RecordFind: func(processID string, before ordinate.Ordinate) (string, string, ordinate.Ordinate, int64, bool, error) {
			rec, err := st.FindCheckpointRecordBefore(store.FindCheckpointRecordBeforeArgs{ProcessID: processID, Before: before})
			if err != nil {
				return "", "", "", 0, false, nil
			}
			return rec.File, rec.TxID, rec.Ordinate, rec.Timestamp, true, nil
		},
		Throttle:               cfg.Checkpoint.CreationThrottle,
		DisableRemote:          cfg.Checkpoint.DisableCreation,
		TrustedOwners:          cfg.Checkpoint.TrustedOwners,
		IgnoreCheckpointTxIDs:  ignoreTxIDs,
		IgnoreRemoteForProcess: ignoreProcesses,
	}
}

// loadWalletKey parses a hex-encoded ed25519 private key from WALLET_KEY_HEX.
// Wallet file formats are out of scope (spec.md §1); the deployment is
// expected to hand this process an already-decoded key.
func loadWalletKey(cfg *cucfg.Config) ed25519.PrivateKey {
	hexKey := os.Getenv("WALLET_KEY_HEX")
	if hexKey == "" {
		return nil
	}
	raw, err := hex.DecodeString(hexKey)
	if err != nil || len(raw) != ed25519.PrivateKeySize {
		log.Warnf("WALLET_KEY_HEX is not a valid ed25519 private key, checkpoint signing disabled: %v", err)
		return nil
	}
	return ed25519.PrivateKey(raw)
}

func walletAddress(cfg *cucfg.Config) string {
	if priv := loadWalletKey(cfg); priv != nil {
		return ckpt.NewEd25519Signer(priv).Address()
	}
	return ""
}

// runDemo confirms the wired orchestrator is reachable at startup; real
// deployments mount orchestrator's methods behind routes instead of
// calling this (the HTTP layer itself is out of scope, spec.md §1).
func runDemo(c *cu.CU) {
	log.Infof("cu ready: %+v", c.Healthcheck())
}
