package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReposInspected counts repositories inspected during discovery by outcome
	ReposInspected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solfixes_repos_inspected_total",
			Help: "Total number of repositories inspected during discovery",
		},
		[]string{"outcome"},
	)

	// DetectorRuns counts detector executions by detector and status
	DetectorRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solfixes_detector_runs_total",
			Help: "Total number of detector executions",
		},
		[]string{"detector", "status"},
	)

	// DetectorDuration tracks detector execution time per file
	DetectorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "solfixes_detector_duration_seconds",
			Help:    "Detector execution duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"detector"},
	)

	// CommitsScanned counts commits walked during patch mining
	CommitsScanned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "solfixes_commits_scanned_total",
			Help: "Total number of commits scanned for detector diffs",
		},
	)

	// PatchesRecorded counts rows appended to the patch table
	PatchesRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "solfixes_patches_recorded_total",
			Help: "Total number of patch rows recorded",
		},
	)

	// ContractsVerified counts deployment-address verification attempts by outcome
	ContractsVerified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solfixes_contracts_verified_total",
			Help: "Total number of contract bytecode comparisons",
		},
		[]string{"outcome"},
	)

	// GitHubRequests counts GitHub API calls by operation and status
	GitHubRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solfixes_github_requests_total",
			Help: "Total number of GitHub API requests",
		},
		[]string{"operation", "status"},
	)

	// EtherscanRequests counts Etherscan API calls by status
	EtherscanRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solfixes_etherscan_requests_total",
			Help: "Total number of Etherscan API requests",
		},
		[]string{"status"},
	)

	// AddressCacheLookups counts deployment-address cache hits and misses
	AddressCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solfixes_address_cache_lookups_total",
			Help: "Total number of deployment-address cache lookups",
		},
		[]string{"result"},
	)

	// ActiveWorkers tracks busy pipeline workers
	ActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "solfixes_active_workers",
			Help: "Number of pipeline workers currently processing a repository",
		},
	)

	// ErrorsTotal counts errors by component and category
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solfixes_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "category"},
	)
)
