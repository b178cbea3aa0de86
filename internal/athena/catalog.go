package athena

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	ath "github.com/aws/aws-sdk-go-v2/service/athena"
	athtypes "github.com/aws/aws-sdk-go-v2/service/athena/types"
)

// CatalogAPI is the subset of the Athena client used for catalog browsing.
type CatalogAPI interface {
	ListDatabases(ctx context.Context, params *ath.ListDatabasesInput, optFns ...func(*ath.Options)) (*ath.ListDatabasesOutput, error)
	ListTableMetadata(ctx context.Context, params *ath.ListTableMetadataInput, optFns ...func(*ath.Options)) (*ath.ListTableMetadataOutput, error)
	GetTableMetadata(ctx context.Context, params *ath.GetTableMetadataInput, optFns ...func(*ath.Options)) (*ath.GetTableMetadataOutput, error)
}

// Catalog browses databases and table schemas in one data catalog.
// Catalog and workgroup names are remote-service namespaces passed through
// unexamined.
type Catalog struct {
	api     CatalogAPI
	catalog string
}

// NewCatalog creates a Catalog backed by the real Athena client.
func NewCatalog(cfg aws.Config, catalog string) *Catalog {
	return NewCatalogFromAPI(ath.NewFromConfig(cfg), catalog)
}

// NewCatalogFromAPI creates a Catalog from an explicit API implementation (for testing).
func NewCatalogFromAPI(api CatalogAPI, catalog string) *Catalog {
	return &Catalog{api: api, catalog: catalog}
}

// Database describes one database in the catalog.
type Database struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Parameters  map[string]string `json:"parameters,omitempty"`
}

// Column describes one column of a table.
type Column struct {
	Name    string `json:"name"`
	Type    string `json:"type,omitempty"`
	Comment string `json:"comment,omitempty"`
}

// TableMetadata describes a table's schema and partitioning.
type TableMetadata struct {
	Name          string            `json:"name"`
	TableType     string            `json:"table_type,omitempty"`
	Columns       []Column          `json:"columns"`
	PartitionKeys []Column          `json:"partition_keys,omitempty"`
	CreateTime    *time.Time        `json:"create_time,omitempty"`
	Parameters    map[string]string `json:"parameters,omitempty"`
}

// ListDatabases returns every database in the catalog, draining remote
// pagination internally.
func (c *Catalog) ListDatabases(ctx context.Context) ([]Database, error) {
	var dbs []Database
	var token *string
	for {
		out, err := c.api.ListDatabases(ctx, &ath.ListDatabasesInput{
			CatalogName: aws.String(c.catalog),
			NextToken:   token,
		})
		if err != nil {
			return nil, wrapRemote(opListDatabases, "", err)
		}
		for _, db := range out.DatabaseList {
			dbs = append(dbs, Database{
				Name:        aws.ToString(db.Name),
				Description: aws.ToString(db.Description),
				Parameters:  db.Parameters,
			})
		}
		if out.NextToken == nil {
			return dbs, nil
		}
		token = out.NextToken
	}
}

// ListTables returns the name of every table in the database, draining
// remote pagination internally.
func (c *Catalog) ListTables(ctx context.Context, database string) ([]string, error) {
	var names []string
	var token *string
	for {
		out, err := c.api.ListTableMetadata(ctx, &ath.ListTableMetadataInput{
			CatalogName:  aws.String(c.catalog),
			DatabaseName: aws.String(database),
			NextToken:    token,
		})
		if err != nil {
			return nil, wrapRemote(opListTables, "", err)
		}
		for _, tm := range out.TableMetadataList {
			names = append(names, aws.ToString(tm.Name))
		}
		if out.NextToken == nil {
			return names, nil
		}
		token = out.NextToken
	}
}

// GetTableMetadata returns the schema of one table.
func (c *Catalog) GetTableMetadata(ctx context.Context, database, table string) (TableMetadata, error) {
	out, err := c.api.GetTableMetadata(ctx, &ath.GetTableMetadataInput{
		CatalogName:  aws.String(c.catalog),
		DatabaseName: aws.String(database),
		TableName:    aws.String(table),
	})
	if err != nil {
		return TableMetadata{}, wrapRemote(opGetTable, "", err)
	}
	if out.TableMetadata == nil {
		return TableMetadata{}, &Error{
			Kind: KindNotFound, Op: opGetTable,
			Err: &athtypes.MetadataException{Message: aws.String("table metadata missing from response")},
		}
	}

	tm := out.TableMetadata
	meta := TableMetadata{
		Name:          aws.ToString(tm.Name),
		TableType:     aws.ToString(tm.TableType),
		Columns:       columns(tm.Columns),
		PartitionKeys: columns(tm.PartitionKeys),
		Parameters:    tm.Parameters,
	}
	if tm.CreateTime != nil {
		t := *tm.CreateTime
		meta.CreateTime = &t
	}
	return meta, nil
}

func columns(cols []athtypes.Column) []Column {
	if len(cols) == 0 {
		return nil
	}
	out := make([]Column, 0, len(cols))
	for _, c := range cols {
		out = append(out, Column{
			Name:    aws.ToString(c.Name),
			Type:    aws.ToString(c.Type),
			Comment: aws.ToString(c.Comment),
		})
	}
	return out
}
