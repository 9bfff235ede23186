// Package awstest provides an in-memory DynamoDB stand-in for unit tests.
//
// It understands the small expression dialect the stores in this module
// issue: SET clauses with `a = :v`, `a = a + :v`, `a = a - :v`, and
// AND-joined conditions of attribute_exists / attribute_not_exists /
// comparisons (=, <>, >=, <=, >, <) against placeholders.
package awstest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Dynamo is a mutex-guarded map of tables keyed by a single string partition key.
type Dynamo struct {
	mu     sync.Mutex
	keys   map[string]string // table -> pk attribute
	tables map[string]map[string]map[string]types.AttributeValue

	// Hook, when set, runs before every call; a non-nil error is returned as-is.
	Hook func(op, table string) error

	Calls map[string]int
}

// NewDynamo creates a fake with the given table -> partition key attribute map.
func NewDynamo(keys map[string]string) *Dynamo {
	d := &Dynamo{
		keys:   map[string]string{},
		tables: map[string]map[string]map[string]types.AttributeValue{},
		Calls:  map[string]int{},
	}
	for t, k := range keys {
		d.keys[t] = k
		d.tables[t] = map[string]map[string]types.AttributeValue{}
	}
	return d
}

// Item returns a copy of a stored item, or nil.
func (d *Dynamo) Item(table, pk string) map[string]types.AttributeValue {
	d.mu.Lock()
	defer d.mu.Unlock()
	it, ok := d.tables[table][pk]
	if !ok {
		return nil
	}
	return clone(it)
}

// Len returns the number of items in a table.
func (d *Dynamo) Len(table string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tables[table])
}

// Seed stores an item unconditionally.
func (d *Dynamo) Seed(table string, item map[string]types.AttributeValue) {
	d.mu.Lock()
	defer d.mu.Unlock()
	pk, err := d.pkOf(table, item)
	if err != nil {
		panic(err)
	}
	d.tables[table][pk] = clone(item)
}

func (d *Dynamo) before(op, table string) error {
	d.Calls[op]++
	if d.Hook != nil {
		return d.Hook(op, table)
	}
	return nil
}

func (d *Dynamo) PutItem(ctx context.Context, in *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	table := *in.TableName
	if err := d.before("PutItem", table); err != nil {
		return nil, err
	}
	pk, err := d.pkOf(table, in.Item)
	if err != nil {
		return nil, err
	}
	ok, err := evalCondition(in.ConditionExpression, d.tables[table][pk], in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{Message: strPtr("put condition failed")}
	}
	d.tables[table][pk] = clone(in.Item)
	return &dyn.PutItemOutput{}, nil
}

func (d *Dynamo) GetItem(ctx context.Context, in *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	table := *in.TableName
	if err := d.before("GetItem", table); err != nil {
		return nil, err
	}
	pk, err := d.pkOf(table, in.Key)
	if err != nil {
		return nil, err
	}
	item, ok := d.tables[table][pk]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: clone(item)}, nil
}

func (d *Dynamo) UpdateItem(ctx context.Context, in *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	table := *in.TableName
	if err := d.before("UpdateItem", table); err != nil {
		return nil, err
	}
	item, err := d.update(table, in.Key, in.UpdateExpression, in.ConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	return &dyn.UpdateItemOutput{Attributes: clone(item)}, nil
}

func (d *Dynamo) Scan(ctx context.Context, in *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	table := *in.TableName
	if err := d.before("Scan", table); err != nil {
		return nil, err
	}
	pkAttr := d.keys[table]
	keys := make([]string, 0, len(d.tables[table]))
	for k := range d.tables[table] {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	start := 0
	if in.ExclusiveStartKey != nil {
		last, err := stringOf(in.ExclusiveStartKey[pkAttr])
		if err != nil {
			return nil, err
		}
		start = sort.SearchStrings(keys, last) + 1
	}
	pageSize := len(keys)
	if in.Limit != nil && int(*in.Limit) > 0 {
		pageSize = int(*in.Limit)
	}
	end := start + pageSize
	if end > len(keys) {
		end = len(keys)
	}

	out := &dyn.ScanOutput{}
	for _, k := range keys[start:end] {
		item := d.tables[table][k]
		ok, err := evalCondition(in.FilterExpression, item, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if ok {
			out.Items = append(out.Items, clone(item))
		}
	}
	out.Count = int32(len(out.Items))
	out.ScannedCount = int32(end - start)
	if end < len(keys) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{pkAttr: &types.AttributeValueMemberS{Value: keys[end-1]}}
	}
	return out, nil
}

func (d *Dynamo) TransactWriteItems(ctx context.Context, in *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.before("TransactWriteItems", ""); err != nil {
		return nil, err
	}

	// first pass: conditions
	reasons := make([]types.CancellationReason, len(in.TransactItems))
	failed := false
	for i, it := range in.TransactItems {
		reasons[i] = types.CancellationReason{Code: strPtr("None")}
		var (
			table string
			key   map[string]types.AttributeValue
			cond  *string
			names map[string]string
			vals  map[string]types.AttributeValue
		)
		switch {
		case it.Put != nil:
			table, key, cond, names, vals = *it.Put.TableName, it.Put.Item, it.Put.ConditionExpression, it.Put.ExpressionAttributeNames, it.Put.ExpressionAttributeValues
		case it.Update != nil:
			table, key, cond, names, vals = *it.Update.TableName, it.Update.Key, it.Update.ConditionExpression, it.Update.ExpressionAttributeNames, it.Update.ExpressionAttributeValues
		case it.ConditionCheck != nil:
			table, key, cond, names, vals = *it.ConditionCheck.TableName, it.ConditionCheck.Key, it.ConditionCheck.ConditionExpression, it.ConditionCheck.ExpressionAttributeNames, it.ConditionCheck.ExpressionAttributeValues
		default:
			return nil, errors.New("awstest: unsupported transact item")
		}
		pk, err := d.pkOf(table, key)
		if err != nil {
			return nil, err
		}
		ok, err := evalCondition(cond, d.tables[table][pk], names, vals)
		if err != nil {
			return nil, err
		}
		if !ok {
			reasons[i] = types.CancellationReason{Code: strPtr("ConditionalCheckFailed")}
			failed = true
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             strPtr("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}

	// second pass: apply
	for _, it := range in.TransactItems {
		switch {
		case it.Put != nil:
			pk, _ := d.pkOf(*it.Put.TableName, it.Put.Item)
			d.tables[*it.Put.TableName][pk] = clone(it.Put.Item)
		case it.Update != nil:
			u := it.Update
			if _, err := d.update(*u.TableName, u.Key, u.UpdateExpression, nil, u.ExpressionAttributeNames, u.ExpressionAttributeValues); err != nil {
				return nil, err
			}
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

func (d *Dynamo) pkOf(table string, item map[string]types.AttributeValue) (string, error) {
	attr, ok := d.keys[table]
	if !ok {
		return "", &types.ResourceNotFoundException{Message: strPtr("table not found: " + table)}
	}
	return stringOf(item[attr])
}

func (d *Dynamo) update(table string, key map[string]types.AttributeValue, expr, cond *string, names map[string]string, vals map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	pk, err := d.pkOf(table, key)
	if err != nil {
		return nil, err
	}
	current := d.tables[table][pk]
	ok, err := evalCondition(cond, current, names, vals)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{Message: strPtr("update condition failed")}
	}

	item := clone(current)
	if item == nil {
		// UpdateItem upserts
		item = clone(key)
	}
	if expr != nil {
		if err := applySet(*expr, item, names, vals); err != nil {
			return nil, err
		}
	}
	d.tables[table][pk] = item
	return item, nil
}

func applySet(expr string, item map[string]types.AttributeValue, names map[string]string, vals map[string]types.AttributeValue) error {
	expr = strings.TrimSpace(expr)
	if !strings.HasPrefix(expr, "SET ") {
		return fmt.Errorf("awstest: unsupported update expression %q", expr)
	}
	for _, clause := range strings.Split(strings.TrimPrefix(expr, "SET "), ",") {
		lhs, rhs, ok := strings.Cut(clause, "=")
		if !ok {
			return fmt.Errorf("awstest: bad set clause %q", clause)
		}
		attr := resolveName(strings.TrimSpace(lhs), names)
		rhs = strings.TrimSpace(rhs)

		var (
			v   types.AttributeValue
			err error
		)
		switch {
		case strings.Contains(rhs, " + "), strings.Contains(rhs, " - "):
			op := "+"
			if strings.Contains(rhs, " - ") {
				op = "-"
			}
			a, b, _ := strings.Cut(rhs, " "+op+" ")
			v, err = arith(item[resolveName(strings.TrimSpace(a), names)], vals[strings.TrimSpace(b)], op)
		default:
			var found bool
			v, found = vals[rhs]
			if !found {
				err = fmt.Errorf("awstest: missing value %s", rhs)
			}
		}
		if err != nil {
			return err
		}
		item[attr] = v
	}
	return nil
}

func arith(a, b types.AttributeValue, op string) (types.AttributeValue, error) {
	x, err := numberOf(a)
	if err != nil {
		return nil, err
	}
	y, err := numberOf(b)
	if err != nil {
		return nil, err
	}
	r := x + y
	if op == "-" {
		r = x - y
	}
	return &types.AttributeValueMemberN{Value: strconv.FormatFloat(r, 'f', -1, 64)}, nil
}

func evalCondition(cond *string, item map[string]types.AttributeValue, names map[string]string, vals map[string]types.AttributeValue) (bool, error) {
	if cond == nil || strings.TrimSpace(*cond) == "" {
		return true, nil
	}
	for _, term := range strings.Split(*cond, " AND ") {
		term = strings.TrimSpace(term)
		ok, err := evalTerm(term, item, names, vals)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func evalTerm(term string, item map[string]types.AttributeValue, names map[string]string, vals map[string]types.AttributeValue) (bool, error) {
	switch {
	case strings.HasPrefix(term, "attribute_not_exists(") && strings.HasSuffix(term, ")"):
		attr := resolveName(term[len("attribute_not_exists("):len(term)-1], names)
		_, exists := item[attr]
		return !exists, nil
	case strings.HasPrefix(term, "attribute_exists(") && strings.HasSuffix(term, ")"):
		attr := resolveName(term[len("attribute_exists("):len(term)-1], names)
		_, exists := item[attr]
		return exists, nil
	}

	for _, op := range []string{"<>", ">=", "<=", "=", ">", "<"} {
		lhs, rhs, ok := strings.Cut(term, " "+op+" ")
		if !ok {
			continue
		}
		left, present := item[resolveName(strings.TrimSpace(lhs), names)]
		right, found := vals[strings.TrimSpace(rhs)]
		if !found {
			return false, fmt.Errorf("awstest: missing value %s", rhs)
		}
		if !present {
			return op == "<>", nil
		}
		return compare(left, right, op)
	}
	return false, fmt.Errorf("awstest: unsupported condition %q", term)
}

func compare(a, b types.AttributeValue, op string) (bool, error) {
	var c int
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		if !ok {
			return false, nil
		}
		c = strings.Compare(av.Value, bv.Value)
	case *types.AttributeValueMemberN:
		x, err := numberOf(av)
		if err != nil {
			return false, err
		}
		y, err := numberOf(b)
		if err != nil {
			return false, nil
		}
		switch {
		case x < y:
			c = -1
		case x > y:
			c = 1
		}
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		if !ok || av.Value != bv.Value {
			c = 1
		}
	default:
		return false, fmt.Errorf("awstest: cannot compare %T", a)
	}
	switch op {
	case "=":
		return c == 0, nil
	case "<>":
		return c != 0, nil
	case ">=":
		return c >= 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	default:
		return c < 0, nil
	}
}

func resolveName(n string, names map[string]string) string {
	if strings.HasPrefix(n, "#") {
		if v, ok := names[n]; ok {
			return v
		}
	}
	return n
}

func numberOf(v types.AttributeValue) (float64, error) {
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("awstest: not a number: %T", v)
	}
	return strconv.ParseFloat(n.Value, 64)
}

func stringOf(v types.AttributeValue) (string, error) {
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", errors.New("awstest: key attribute missing or not a string")
	}
	return s.Value, nil
}

// clone copies the top-level map; attribute values are treated as immutable.
func clone(m map[string]types.AttributeValue) map[string]types.AttributeValue {
	if m == nil {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func strPtr(s string) *string { return &s }
