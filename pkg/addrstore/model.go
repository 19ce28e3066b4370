package addrstore

import (
	"time"

	"github.com/uptrace/bun"
)

// DeploymentAddressDao is a data access object that maps directly to the
// 'deployment_address_details' table in PostgreSQL.
type DeploymentAddressDao struct {
	bun.BaseModel      `bun:"table:deployment_address_details,alias:d"`
	ID                 int64     `bun:"id,pk,autoincrement"`
	DeploymentAddress  string    `bun:"deployment_address,unique,notnull,type:varchar(42)"`
	ContractName       string    `bun:"contract_name,notnull,type:varchar(255)"`
	CompilerVersion    string    `bun:"compiler_version,notnull,type:varchar(64)"`
	Optimized          bool      `bun:"optimized,notnull"`
	OptimizationRuns   int       `bun:"optimization_runs,notnull"`
	BlockchainBytecode string    `bun:"blockchain_bytecode,type:text"`
	CreatedAt          time.Time `bun:"created_at,nullzero,default:current_timestamp"`
}

func toDao(details *Details) *DeploymentAddressDao {
	return &DeploymentAddressDao{
		DeploymentAddress:  details.DeploymentAddress,
		ContractName:       details.ContractName,
		CompilerVersion:    details.CompilerVersion,
		Optimized:          details.Optimized,
		OptimizationRuns:   details.OptimizationRuns,
		BlockchainBytecode: details.BlockchainBytecode,
	}
}

func toDetails(dao *DeploymentAddressDao) *Details {
	return &Details{
		DeploymentAddress:  dao.DeploymentAddress,
		ContractName:       dao.ContractName,
		CompilerVersion:    dao.CompilerVersion,
		Optimized:          dao.Optimized,
		OptimizationRuns:   dao.OptimizationRuns,
		BlockchainBytecode: dao.BlockchainBytecode,
	}
}
