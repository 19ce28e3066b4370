package addrdb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"github.com/solfixes/solfixes/pkg/addrstore"
	mghelper "github.com/solfixes/solfixes/pkg/pgutil/migrations"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating deployment_address_details table...")
		if err := mghelper.CreateSchema(ctx, db, &addrstore.DeploymentAddressDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &addrstore.DeploymentAddressDao{}, "contract_name")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping deployment_address_details table...")
		return mghelper.DropTables(ctx, db, &addrstore.DeploymentAddressDao{})
	})
}
