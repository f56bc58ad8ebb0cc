package sqlite

import (
	"fmt"
	"strings"
	"time"

	"go.einride.tech/aip/filtering"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// sqlCondition represents a SQL WHERE clause fragment with parameters.
type sqlCondition struct {
	// Clause is the SQL WHERE clause (e.g., "role = ?").
	Clause string
	// Params are the positional parameters for the clause.
	Params []any
}

// filterSchema binds AIP-160 filter identifiers to SQL columns for one
// list operation.
type filterSchema struct {
	declare []filtering.DeclarationOption
	columns map[string]string
}

func memberFilterSchema() filterSchema {
	return filterSchema{
		declare: []filtering.DeclarationOption{
			filtering.DeclareStandardFunctions(),
			filtering.DeclareIdent("user_id", filtering.TypeString),
			filtering.DeclareIdent("role", filtering.TypeString),
			filtering.DeclareIdent("status", filtering.TypeString),
			filtering.DeclareIdent("joined_at", filtering.TypeTimestamp),
		},
		columns: map[string]string{
			"user_id":   "user_id",
			"role":      "role",
			"status":    "status",
			"joined_at": "joined_at",
		},
	}
}

func teamFilterSchema() filterSchema {
	return filterSchema{
		declare: []filtering.DeclarationOption{
			filtering.DeclareStandardFunctions(),
			filtering.DeclareIdent("name", filtering.TypeString),
			filtering.DeclareIdent("slug", filtering.TypeString),
			filtering.DeclareIdent("parent_team_id", filtering.TypeString),
		},
		columns: map[string]string{
			"name":           "name",
			"slug":           "slug",
			"parent_team_id": "parent_team_id",
		},
	}
}

func invitationFilterSchema() filterSchema {
	return filterSchema{
		declare: []filtering.DeclarationOption{
			filtering.DeclareStandardFunctions(),
			filtering.DeclareIdent("status", filtering.TypeString),
			filtering.DeclareIdent("role", filtering.TypeString),
			filtering.DeclareIdent("invitee_identifier", filtering.TypeString),
			filtering.DeclareIdent("identifier_type", filtering.TypeString),
			filtering.DeclareIdent("team_id", filtering.TypeString),
			filtering.DeclareIdent("inviter_user_id", filtering.TypeString),
			filtering.DeclareIdent("expires_at", filtering.TypeTimestamp),
		},
		columns: map[string]string{
			"status":             "status",
			"role":               "role",
			"invitee_identifier": "invitee_identifier",
			"identifier_type":    "identifier_type",
			"team_id":            "team_id",
			"inviter_user_id":    "inviter_user_id",
			"expires_at":         "expires_at",
		},
	}
}

// parseFilter parses an AIP-160 filter expression into a SQL condition.
// Returns an empty condition for an empty filter string.
func parseFilter(filterStr string, schema filterSchema) (sqlCondition, error) {
	if strings.TrimSpace(filterStr) == "" {
		return sqlCondition{}, nil
	}

	decls, err := filtering.NewDeclarations(schema.declare...)
	if err != nil {
		return sqlCondition{}, fmt.Errorf("create declarations: %w", err)
	}

	parsed, err := filtering.ParseFilterString(filterStr, decls)
	if err != nil {
		return sqlCondition{}, fmt.Errorf("parse filter: %w", err)
	}

	t := translator{columns: schema.columns}
	return t.expr(parsed.CheckedExpr.Expr)
}

type translator struct {
	columns map[string]string
}

func (t translator) expr(e *expr.Expr) (sqlCondition, error) {
	if e == nil {
		return sqlCondition{}, nil
	}

	switch kind := e.ExprKind.(type) {
	case *expr.Expr_CallExpr:
		return t.call(kind.CallExpr)
	default:
		return sqlCondition{}, fmt.Errorf("unsupported expression type: %T", kind)
	}
}

func (t translator) call(call *expr.Expr_Call) (sqlCondition, error) {
	switch call.Function {
	case "_&&_", "AND":
		return t.logical(call.Args, "AND")
	case "_||_", "OR":
		return t.logical(call.Args, "OR")
	case "_==_", "=":
		return t.comparison(call.Args, "=")
	case "_!=_", "!=":
		return t.comparison(call.Args, "!=")
	case "_<_", "<":
		return t.comparison(call.Args, "<")
	case "_<=_", "<=":
		return t.comparison(call.Args, "<=")
	case "_>_", ">":
		return t.comparison(call.Args, ">")
	case "_>=_", ">=":
		return t.comparison(call.Args, ">=")
	default:
		return sqlCondition{}, fmt.Errorf("unsupported function: %s", call.Function)
	}
}

func (t translator) logical(args []*expr.Expr, op string) (sqlCondition, error) {
	if len(args) != 2 {
		return sqlCondition{}, fmt.Errorf("%s requires 2 arguments", op)
	}

	left, err := t.expr(args[0])
	if err != nil {
		return sqlCondition{}, err
	}

	right, err := t.expr(args[1])
	if err != nil {
		return sqlCondition{}, err
	}

	return sqlCondition{
		Clause: fmt.Sprintf("(%s %s %s)", left.Clause, op, right.Clause),
		Params: append(left.Params, right.Params...),
	}, nil
}

func (t translator) comparison(args []*expr.Expr, op string) (sqlCondition, error) {
	if len(args) != 2 {
		return sqlCondition{}, fmt.Errorf("comparison requires 2 arguments")
	}

	field, err := extractFieldName(args[0])
	if err != nil {
		return sqlCondition{}, err
	}

	column, ok := t.columns[field]
	if !ok {
		return sqlCondition{}, fmt.Errorf("unknown field: %s", field)
	}

	value, err := extractValue(args[1])
	if err != nil {
		return sqlCondition{}, err
	}

	return sqlCondition{
		Clause: fmt.Sprintf("%s %s ?", column, op),
		Params: []any{value},
	}, nil
}

func extractFieldName(e *expr.Expr) (string, error) {
	if e == nil {
		return "", fmt.Errorf("nil expression")
	}

	switch kind := e.ExprKind.(type) {
	case *expr.Expr_IdentExpr:
		return kind.IdentExpr.Name, nil
	default:
		return "", fmt.Errorf("expected identifier, got %T", kind)
	}
}

func extractValue(e *expr.Expr) (any, error) {
	if e == nil {
		return nil, fmt.Errorf("nil expression")
	}

	switch kind := e.ExprKind.(type) {
	case *expr.Expr_ConstExpr:
		return extractConstValue(kind.ConstExpr)
	case *expr.Expr_CallExpr:
		// Handle timestamp("...") function calls.
		if kind.CallExpr.Function == "timestamp" && len(kind.CallExpr.Args) == 1 {
			return extractTimestampValue(kind.CallExpr.Args[0])
		}
		return nil, fmt.Errorf("unsupported function in value position: %s", kind.CallExpr.Function)
	default:
		return nil, fmt.Errorf("expected constant or timestamp, got %T", kind)
	}
}

func extractConstValue(c *expr.Constant) (any, error) {
	if c == nil {
		return nil, fmt.Errorf("nil constant")
	}

	switch kind := c.ConstantKind.(type) {
	case *expr.Constant_StringValue:
		return kind.StringValue, nil
	case *expr.Constant_Int64Value:
		return kind.Int64Value, nil
	case *expr.Constant_Uint64Value:
		return kind.Uint64Value, nil
	case *expr.Constant_DoubleValue:
		return kind.DoubleValue, nil
	case *expr.Constant_BoolValue:
		return kind.BoolValue, nil
	default:
		return nil, fmt.Errorf("unsupported constant type: %T", kind)
	}
}

// extractTimestampValue converts a timestamp("...") argument to epoch
// milliseconds, matching the column encoding.
func extractTimestampValue(e *expr.Expr) (int64, error) {
	if e == nil {
		return 0, fmt.Errorf("nil timestamp argument")
	}

	switch kind := e.ExprKind.(type) {
	case *expr.Expr_ConstExpr:
		strVal, ok := kind.ConstExpr.ConstantKind.(*expr.Constant_StringValue)
		if !ok {
			return 0, fmt.Errorf("timestamp argument must be a string")
		}
		t, err := time.Parse(time.RFC3339, strVal.StringValue)
		if err != nil {
			t, err = time.Parse(time.RFC3339Nano, strVal.StringValue)
			if err != nil {
				return 0, fmt.Errorf("invalid timestamp format: %s", strVal.StringValue)
			}
		}
		return t.UTC().UnixMilli(), nil
	default:
		return 0, fmt.Errorf("timestamp argument must be a constant string")
	}
}
