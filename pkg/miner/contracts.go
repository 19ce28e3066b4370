package miner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	goversion "github.com/hashicorp/go-version"
	"go.uber.org/zap"

	"github.com/solfixes/solfixes/internal/metrics"
	"github.com/solfixes/solfixes/pkg/addrstore"
	"github.com/solfixes/solfixes/pkg/config"
	"github.com/solfixes/solfixes/pkg/dataset"
	"github.com/solfixes/solfixes/pkg/etherscan"
	"github.com/solfixes/solfixes/pkg/solidity"
)

// ContractVerifier is the verification stage: it matches repository
// contracts to verified deployment addresses by compiling historical
// revisions and comparing runtime bytecode against on-chain code.
type ContractVerifier struct {
	config    *config.Config
	git       GitClient
	scanner   *Scanner
	toolchain Toolchain
	source    EtherscanClient
	chain     ChainClient
	store     addrstore.Store
	logger    *zap.Logger

	index      map[string][]string
	done       map[string]struct{}
	minVersion *goversion.Version

	mu     sync.Mutex
	writer *dataset.ContractWriter
}

func NewContractVerifier(
	cfg *config.Config,
	git GitClient,
	scanner *Scanner,
	toolchain Toolchain,
	source EtherscanClient,
	chain ChainClient,
	store addrstore.Store,
	logger *zap.Logger,
) *ContractVerifier {
	return &ContractVerifier{
		config:    cfg,
		git:       git,
		scanner:   scanner,
		toolchain: toolchain,
		source:    source,
		chain:     chain,
		store:     store,
		logger:    logger.Named("contracts"),
	}
}

// Run verifies every recorded repository's contracts against the
// verified-address index. Files already in the contract table are skipped.
func (v *ContractVerifier) Run(ctx context.Context) error {
	names, err := recordedRepos(v.config)
	if err != nil {
		return err
	}

	v.index, err = etherscan.LoadVerifiedIndex(v.config.Etherscan.VerifiedContractsCSV)
	if err != nil {
		return fmt.Errorf("failed to load verified-contract index: %w", err)
	}

	v.minVersion, err = goversion.NewVersion(v.config.Miner.MinSolidityVersion)
	if err != nil {
		return fmt.Errorf("invalid minimum solidity version: %w", err)
	}

	tablePath := filepath.Join(v.config.Dataset.Dir, dataset.ContractsFile)
	existing, err := dataset.ReadContracts(tablePath)
	if err != nil {
		return fmt.Errorf("failed to load contract table: %w", err)
	}
	v.done = make(map[string]struct{}, len(existing))
	for _, c := range existing {
		v.done[fileKey(c.RepoName, c.FilePath)] = struct{}{}
	}

	v.writer, err = dataset.NewContractWriter(tablePath)
	if err != nil {
		return err
	}
	defer func() { _ = v.writer.Close() }()

	runPool(ctx, v.config.Miner.Workers, names, v.verify)
	return ctx.Err()
}

func fileKey(fullName, file string) string {
	return fullName + "\x00" + file
}

func (v *ContractVerifier) verify(ctx context.Context, fullName string) {
	logger := v.logger.With(zap.String("repo", fullName))

	checkout, err := v.git.Clone(ctx, v.config.Dataset.ClonesDir, fullName)
	if err != nil {
		logger.Error("Clone failed", zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("contracts", "git").Inc()
		return
	}

	branch, err := v.git.DefaultBranch(ctx, checkout)
	if err != nil {
		logger.Error("Default branch lookup failed", zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("contracts", "git").Inc()
		return
	}
	if err := v.git.Checkout(ctx, checkout, branch); err != nil {
		logger.Error("Checkout failed", zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("contracts", "git").Inc()
		return
	}

	remaps, err := solidity.FindRemappings(checkout)
	if err != nil {
		logger.Warn("Remapping discovery failed", zap.Error(err))
	}

	files, err := solidity.FindContractFiles(checkout)
	if err != nil {
		logger.Error("Contract listing failed", zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("contracts", "internal").Inc()
		return
	}

	// Transcripts open lazily: most repositories never reach a match and
	// should not leave empty log files behind.
	var logs Transcripts
	defer func() {
		if logs != nil {
			logs.Close()
		}
	}()

	for _, abs := range files {
		if ctx.Err() != nil {
			return
		}
		rel, err := filepath.Rel(checkout, abs)
		if err != nil {
			continue
		}
		if _, ok := v.done[fileKey(fullName, rel)]; ok {
			continue
		}
		if err := v.verifyFile(ctx, fullName, checkout, rel, remaps, &logs, logger); err != nil {
			logger.Warn("File verification failed",
				zap.String("file", rel),
				zap.Error(err))
			metrics.ErrorsTotal.WithLabelValues("contracts", "internal").Inc()
		}
		// verifyFile leaves the tree at whatever revision it inspected
		// last; the next file's history walk needs the branch head.
		if err := v.git.Checkout(ctx, checkout, branch); err != nil {
			logger.Error("Branch restore failed", zap.Error(err))
			metrics.ErrorsTotal.WithLabelValues("contracts", "git").Inc()
			return
		}
	}
}

// verifyFile walks one file's revisions newest-first until a compiled
// revision matches a verified deployment, then records the match and stops.
func (v *ContractVerifier) verifyFile(ctx context.Context, fullName, checkout, file string, remaps []string, logs *Transcripts, logger *zap.Logger) error {
	revisions, err := v.git.FileCommits(ctx, checkout, file)
	if err != nil {
		return err
	}

	for i, rev := range revisions {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := v.git.Checkout(ctx, checkout, rev); err != nil {
			return err
		}

		content, err := os.ReadFile(filepath.Join(checkout, file))
		if err != nil {
			// The path can be absent at a revision before a rename.
			continue
		}
		astVersion, err := solidity.VersionFromPragma(solidity.ExtractPragma(content), v.minVersion)
		if err != nil {
			continue
		}

		ast, err := v.toolchain.AST(ctx, checkout, file, astVersion, remaps)
		if err != nil {
			logger.Warn("AST parse failed",
				zap.String("file", file),
				zap.String("revision", rev),
				zap.Error(err))
			continue
		}

		for _, name := range solidity.NewSource(file, content, ast).ContractNames() {
			for _, address := range v.index[name] {
				details, err := v.details(ctx, address)
				if err != nil {
					if !errors.Is(err, etherscan.ErrNotVerified) {
						logger.Warn("Address details unavailable",
							zap.String("address", address),
							zap.Error(err))
						metrics.ErrorsTotal.WithLabelValues("contracts", "etherscan").Inc()
					}
					continue
				}
				if !strings.EqualFold(details.ContractName, name) {
					continue
				}

				compiler := etherscan.NormalizeCompilerVersion(details.CompilerVersion)
				matched, err := v.compare(ctx, checkout, file, name, compiler, remaps, details)
				if err != nil {
					metrics.ContractsVerified.WithLabelValues("compile_error").Inc()
					continue
				}
				if !matched {
					metrics.ContractsVerified.WithLabelValues("mismatch").Inc()
					continue
				}

				metrics.ContractsVerified.WithLabelValues("match").Inc()
				return v.recordMatch(ctx, fullName, checkout, file, name, compiler, details, revisions, i, remaps, logs, logger)
			}
		}
	}
	return nil
}

// compare compiles the checked-out revision with the deployed build
// settings and tests runtime bytecode equality against on-chain code.
func (v *ContractVerifier) compare(ctx context.Context, dir, file, contract, compiler string, remaps []string, details *addrstore.Details) (bool, error) {
	local, err := v.toolchain.CompileRuntime(ctx, dir, file, contract, solidity.CompileOptions{
		Version:      compiler,
		Remaps:       remaps,
		Optimize:     details.Optimized,
		OptimizeRuns: details.OptimizationRuns,
	})
	if err != nil {
		return false, err
	}
	return solidity.RuntimeEqual(local, details.BlockchainBytecode, compiler)
}

// recordMatch extends the match across consecutive older revisions still
// compiling to the same on-chain bytecode, scans the newest matching
// revision, and appends the contract row.
func (v *ContractVerifier) recordMatch(ctx context.Context, fullName, checkout, file, name, compiler string, details *addrstore.Details, revisions []string, matchIdx int, remaps []string, logs *Transcripts, logger *zap.Logger) error {
	hashes := []string{revisions[matchIdx]}
	versions := []string{compiler}

	for _, rev := range revisions[matchIdx+1:] {
		if err := v.git.Checkout(ctx, checkout, rev); err != nil {
			break
		}
		matched, err := v.compare(ctx, checkout, file, name, compiler, remaps, details)
		if err != nil || !matched {
			break
		}
		hashes = append(hashes, rev)
		versions = append(versions, compiler)
	}

	if err := v.git.Checkout(ctx, checkout, revisions[matchIdx]); err != nil {
		return err
	}

	if *logs == nil {
		opened, err := v.scanner.OpenTranscripts(fullName, time.Now())
		if err != nil {
			return err
		}
		*logs = opened
	}

	var cell []dataset.Entry
	scan, err := v.scanner.ScanFile(ctx, checkout, file, remaps, *logs)
	if err != nil {
		logger.Warn("Match scan failed",
			zap.String("file", file),
			zap.Error(err))
	} else {
		byDet := make(map[string][]dataset.Vulnerability)
		for det, findings := range scan.Findings {
			for _, f := range findings {
				byDet[det] = append(byDet[det], dataset.Vulnerability{
					Kind:      f.Kind,
					Locations: toLocations(f.Locations),
				})
			}
		}
		cell = dataset.GroupFindings(v.scanner.Order(), byDet)
	}

	row := dataset.Contract{
		RepoName:          fullName,
		ContractName:      name,
		CommitHashes:      hashes,
		FilePath:          file,
		DeploymentAddress: details.DeploymentAddress,
		SolcVersions:      versions,
		Vulnerabilities:   cell,
	}

	v.mu.Lock()
	err = v.writer.Append(&row)
	v.mu.Unlock()
	if err != nil {
		return err
	}

	logger.Info("Contract matched",
		zap.String("contract", name),
		zap.String("address", details.DeploymentAddress),
		zap.Int("revisions", len(hashes)))
	return nil
}

// details resolves one deployment address through the cache, falling back
// to Etherscan and the chain on a miss.
func (v *ContractVerifier) details(ctx context.Context, address string) (*addrstore.Details, error) {
	cached, err := v.store.Get(ctx, address)
	if err == nil {
		metrics.AddressCacheLookups.WithLabelValues("hit").Inc()
		return cached, nil
	}
	if !errors.Is(err, addrstore.ErrAddressNotFound) {
		return nil, err
	}
	metrics.AddressCacheLookups.WithLabelValues("miss").Inc()

	info, err := v.source.ContractSource(ctx, address)
	if err != nil {
		return nil, err
	}
	code, err := v.chain.RuntimeCode(ctx, address)
	if err != nil {
		return nil, err
	}

	d := &addrstore.Details{
		DeploymentAddress:  address,
		ContractName:       info.ContractName,
		CompilerVersion:    info.CompilerVersion,
		Optimized:          info.Optimized,
		OptimizationRuns:   info.OptimizationRuns,
		BlockchainBytecode: code,
	}
	if err := v.store.Put(ctx, d); err != nil {
		v.logger.Warn("Cache write failed",
			zap.String("address", address),
			zap.Error(err))
	}
	return d, nil
}
