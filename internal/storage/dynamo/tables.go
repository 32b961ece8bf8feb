package dynamo

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// tableDef describes one table and its optional string-keyed GSI.
type tableDef struct {
	name      string
	indexName string
	indexAttr string
}

var tableDefs = []tableDef{
	{name: estimatesTable},
	{name: lineItemsTable, indexName: lineItemsEstimateIDIndex, indexAttr: "estimate_id"},
	{name: rolesTable},
	{name: usersTable},
	{name: overridesTable, indexName: overridesScopeIndex, indexAttr: "scope_key"},
}

// CreateTables creates every table the store needs. Tables that already
// exist are left untouched.
func (s *Store) CreateTables(ctx context.Context) error {
	for _, def := range tableDefs {
		_, err := s.ddb.CreateTable(ctx, createTableInput(s.prefix, def))
		var inUse *types.ResourceInUseException
		if errors.As(err, &inUse) {
			continue
		}
		if err != nil {
			return fmt.Errorf("create table %s%s: %w", s.prefix, def.name, err)
		}
	}
	return nil
}

func createTableInput(prefix string, def tableDef) *dynamodb.CreateTableInput {
	in := &dynamodb.CreateTableInput{
		TableName:   aws.String(prefix + def.name),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("id"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("id"), KeyType: types.KeyTypeHash},
		},
	}

	if def.indexName != "" {
		in.AttributeDefinitions = append(in.AttributeDefinitions, types.AttributeDefinition{
			AttributeName: aws.String(def.indexAttr),
			AttributeType: types.ScalarAttributeTypeS,
		})
		in.GlobalSecondaryIndexes = []types.GlobalSecondaryIndex{{
			IndexName: aws.String(def.indexName),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(def.indexAttr), KeyType: types.KeyTypeHash},
			},
			Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
		}}
	}
	return in
}
