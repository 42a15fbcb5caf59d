package sqlt

import (
	"database/sql"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"
)

// Row is the view of the current result row handed to a RowMapper.
// *sql.Rows satisfies it.
type Row interface {
	Columns() ([]string, error)
	Scan(dest ...any) error
}

// RowMapper converts one result row into one value of T. It is called once
// per row, in result order, and must not keep state between calls.
type RowMapper[T any] interface {
	MapRow(row Row) (T, error)
}

// RowMapperFunc adapts an ordinary function to RowMapper.
type RowMapperFunc[T any] func(row Row) (T, error)

// MapRow calls f(row).
func (f RowMapperFunc[T]) MapRow(row Row) (T, error) {
	return f(row)
}

// colKind classifies the strategy for scanning a result column into a struct field.
type colKind uint8

const (
	ckSink    colKind = iota // column is ignored, scan into sink
	ckScanner                // field implements sql.Scanner
	ckPtr                    // field is *T (we use a **T holder)
	ckValue                  // direct value field
)

const cacheSize = 4096 // Default size for the field-index and plan caches

var scannerIface = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
var scanPlanCache = newPlanCache(cacheSize)
var structIndexCache = newFieldCache(cacheSize)

// scalarMapper scans a single-column row into T.
type scalarMapper[T any] struct{}

// structMapper scans a row into a struct (or *struct) T through a cached plan.
type structMapper[T any] struct {
	strict bool
}

// ScalarMapper returns a RowMapper for single-column rows: primitives,
// []byte, time.Time and sql.Scanner types.
func ScalarMapper[T any]() RowMapper[T] {
	return scalarMapper[T]{}
}

// StructMapper returns a RowMapper that fills a struct (or pointer to struct)
// T by column name. Fields bind by `db:"name"` tag, otherwise by field name;
// nested structs are flattened and pointer fields accept NULL. Columns with no
// matching field are ignored and fields with no column keep their zero value.
func StructMapper[T any]() RowMapper[T] {
	return structMapper[T]{}
}

// StrictStructMapper is like StructMapper but fails with ErrColumnNotFound
// when a mapped field has no column in the row.
func StrictStructMapper[T any]() RowMapper[T] {
	return structMapper[T]{strict: true}
}

// MapRow scans the only column of row into a new T.
func (scalarMapper[T]) MapRow(row Row) (T, error) {
	var v T
	cols, err := row.Columns()
	if err != nil {
		return v, err
	}
	if len(cols) != 1 {
		return v, fmt.Errorf("sqlt: scan into %T requires 1 column, got %d", v, len(cols))
	}
	if err := row.Scan(&v); err != nil {
		return v, err
	}
	return v, nil
}

// MapRow scans row into a new T using the plan for (T, columns).
func (m structMapper[T]) MapRow(row Row) (T, error) {
	var out T
	rv := reflect.ValueOf(&out).Elem()

	// *Struct: allocate the pointee and fill it
	dst := rv
	if rv.Kind() == reflect.Pointer {
		if rv.Type().Elem().Kind() != reflect.Struct {
			return out, fmt.Errorf("sqlt: StructMapper on pointer to non-struct %s", rv.Type())
		}
		rv.Set(reflect.New(rv.Type().Elem()))
		dst = rv.Elem()
	}
	if dst.Kind() != reflect.Struct {
		return out, fmt.Errorf("sqlt: StructMapper on non-struct type %s", dst.Type())
	}

	cols, err := row.Columns()
	if err != nil {
		return out, err
	}
	plan, err := getScanPlan(cols, dst.Type())
	if err != nil {
		return out, err
	}
	if m.strict && len(plan.missing) > 0 {
		return out, fmt.Errorf("%w: %s", ErrColumnNotFound, strings.Join(plan.missing, ", "))
	}
	if err := scanWithPlan(row, plan, dst); err != nil {
		return out, err
	}
	return out, nil
}

// scanWithPlan scans the current row into dstStruct using plan.
// A per-scan state is allocated to hold mutable buffers safely.
func scanWithPlan(row Row, plan *scanPlan, dstStruct reflect.Value) error {
	st := plan.newState()

	for i := range plan.kinds {
		switch plan.kinds[i] {
		case ckSink:
			st.targets[i] = st.sinks[i]
		case ckScanner, ckValue:
			fv := fieldByIndexAlloc(dstStruct, plan.fPath[i])
			st.targets[i] = fv.Addr().Interface()
		case ckPtr:
			h := st.holders[i]
			h.Elem().SetZero()
			st.targets[i] = h.Interface()
		}
	}

	if err := row.Scan(st.targets...); err != nil {
		return err
	}
	for _, i := range plan.ptrIdx {
		setFieldByIndex(dstStruct, plan.fPath[i], st.holders[i].Elem())
	}
	return nil
}

// fieldByIndexAlloc walks a struct by index path, allocating intermediate
// pointer nodes on the way (but NOT allocating the leaf pointer itself).
func fieldByIndexAlloc(root reflect.Value, path []int) reflect.Value {
	v := root
	for i, idx := range path {
		f := v.Field(idx)
		if i == len(path)-1 {
			return f
		}
		if f.Kind() == reflect.Pointer {
			if f.IsNil() {
				f.Set(reflect.New(f.Type().Elem()))
			}
			v = f.Elem()
		} else {
			v = f
		}
	}
	return v
}

// setFieldByIndex sets value into the field at path on root,
// allocating any intermediate pointer nodes. 'value' is typically *T.
func setFieldByIndex(root reflect.Value, path []int, value reflect.Value) {
	v := root
	for i, idx := range path {
		f := v.Field(idx)
		if i == len(path)-1 {
			f.Set(value)
			return
		}
		if f.Kind() == reflect.Pointer {
			if f.IsNil() {
				f.Set(reflect.New(f.Type().Elem()))
			}
			v = f.Elem()
		} else {
			v = f
		}
	}
}

// buildScanPlan builds an immutable scanPlan describing how each result column
// should be scanned into the destination struct type dstT, and which mapped
// fields the columns leave unfilled.
func buildScanPlan(cols []string, dstT reflect.Type) (*scanPlan, error) {
	fmap := fieldIndexMap(dstT)

	p := &scanPlan{
		kinds:         make([]colKind, len(cols)),
		fPath:         make([][]int, len(cols)),
		ptrIdx:        make([]int, 0, 8),
		ptrFieldTypes: make([]reflect.Type, len(cols)),
	}

	seen := make(map[string]bool, len(cols))
	for i, col := range cols {
		fi, ok := fmap[col]
		if !ok {
			p.kinds[i] = ckSink
			continue
		}
		if fi.ambiguous {
			return nil, fmt.Errorf("%w: %q", ErrFieldAmbiguous, col)
		}
		seen[col] = true

		ft := dstT.FieldByIndex(fi.index).Type

		if reflect.PointerTo(ft).Implements(scannerIface) || ft.Implements(scannerIface) {
			p.kinds[i] = ckScanner
			p.fPath[i] = fi.index
			continue
		}

		// *T fields are scanned via a **T holder and copied post-scan.
		if ft.Kind() == reflect.Pointer {
			p.kinds[i] = ckPtr
			p.fPath[i] = fi.index
			p.ptrFieldTypes[i] = ft
			p.ptrIdx = append(p.ptrIdx, i)
			continue
		}

		p.kinds[i] = ckValue
		p.fPath[i] = fi.index
	}

	for name, fi := range fmap {
		if !fi.ambiguous && !seen[name] {
			p.missing = append(p.missing, name)
		}
	}
	// map order is random; keep error messages stable
	slices.Sort(p.missing)

	return p, nil
}

// fieldIndexMap returns a mapping from column name → fieldInfo for the given type.
// It flattens nested structs (excluding time.Time and sql.Scanner types) and
// honors `db:"name"` tags; `db:"-"` skips a field.
// The result is cached in a two-tier cache.
func fieldIndexMap(t reflect.Type) map[string]fieldInfo {
	if m, ok := structIndexCache.get(t); ok {
		return m
	}

	base := t
	for base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	if base.Kind() != reflect.Struct {
		m := make(map[string]fieldInfo)
		structIndexCache.put(t, m)
		return m
	}

	m := make(map[string]fieldInfo, base.NumField())

	visited := map[reflect.Type]bool{}
	var walk func(rt reflect.Type, path []int)

	walk = func(rt reflect.Type, path []int) {
		for rt.Kind() == reflect.Pointer {
			rt = rt.Elem()
		}
		if rt.Kind() != reflect.Struct {
			return
		}
		if visited[rt] {
			return
		}
		visited[rt] = true
		defer delete(visited, rt)

		for i := 0; i < rt.NumField(); i++ {
			f := rt.Field(i)
			if f.PkgPath != "" { // unexported
				continue
			}
			tag := f.Tag.Get("db")
			if tag == "-" {
				continue
			}
			name := f.Name
			if tag != "" {
				if n, _, _ := strings.Cut(tag, ","); n != "" {
					name = n
				}
			}

			if shouldFlatten(f.Type) {
				walk(f.Type, appendIndex(path, i))
				continue
			}

			if _, exists := m[name]; exists {
				m[name] = fieldInfo{ambiguous: true}
				continue
			}
			m[name] = fieldInfo{index: appendIndex(path, i)}
		}
	}

	walk(base, nil)
	structIndexCache.put(t, m)
	return m
}

// shouldFlatten decides whether to descend into ft (struct or *struct).
func shouldFlatten(ft reflect.Type) bool {
	if reflect.PointerTo(ft).Implements(scannerIface) || ft.Implements(scannerIface) {
		return false
	}
	tt := ft
	if tt.Kind() == reflect.Pointer {
		tt = tt.Elem()
	}
	if tt.Kind() != reflect.Struct {
		return false
	}
	// Do not flatten time.Time (common leaf struct)
	if tt.PkgPath() == "time" && tt.Name() == "Time" {
		return false
	}
	return true
}

// appendIndex returns a new index path with idx appended.
func appendIndex(path []int, idx int) []int {
	out := make([]int, len(path)+1)
	copy(out, path)
	out[len(path)] = idx
	return out
}

// --------------------------------
// Cache
// --------------------------------

// fieldInfo describes a leaf field by its full index path.
type fieldInfo struct {
	index     []int
	ambiguous bool // more than one field maps to the same name
}

// scanState holds per-scan mutable buffers.
// It is created from a cached scanPlan and is not shared across goroutines.
type scanState struct {
	targets []any
	sinks   []any
	holders []reflect.Value
}

// scanPlan describes how to map each result column to a struct field (immutable).
// Mutable, per-scan buffers are not stored here; they are created via newState().
type scanPlan struct {
	kinds         []colKind
	fPath         [][]int
	ptrIdx        []int
	ptrFieldTypes []reflect.Type // for ckPtr: field reflect.Type (which is a pointer type *T)
	missing       []string       // mapped fields with no column, sorted
}

// newState allocates per-scan buffers sized to the plan's column count.
func (p *scanPlan) newState() *scanState {
	n := len(p.kinds)
	st := &scanState{
		targets: make([]any, n),
		sinks:   make([]any, n),
		holders: make([]reflect.Value, n),
	}
	for i := 0; i < n; i++ {
		st.sinks[i] = new(any)
	}
	for _, i := range p.ptrIdx {
		st.holders[i] = reflect.New(p.ptrFieldTypes[i]) // **T
	}
	return st
}

// planKey identifies a scanPlan by destination struct type and the column signature.
type planKey struct {
	dstType reflect.Type
	sig     string
}

// twoGen is a two-tier map with cheap rotation to bound memory.
// 'curr' is the hot set; 'prev' is the previous generation. Lookups promote.
type twoGen[K comparable, V any] struct {
	mu   sync.RWMutex
	curr map[K]V
	prev map[K]V
	max  int
}

// planCache caches scan plans per (type, columns).
type planCache = twoGen[planKey, *scanPlan]

// fieldCache caches field index maps per type.
type fieldCache = twoGen[reflect.Type, map[string]fieldInfo]

// newPlanCache creates a new two-tier plan cache with a max size hint.
func newPlanCache(max int) *planCache {
	return newTwoGen[planKey, *scanPlan](max)
}

// newFieldCache creates a new two-tier field index cache with a max size hint.
func newFieldCache(max int) *fieldCache {
	return newTwoGen[reflect.Type, map[string]fieldInfo](max)
}

func newTwoGen[K comparable, V any](max int) *twoGen[K, V] {
	if max <= 0 {
		max = cacheSize
	}
	return &twoGen[K, V]{
		curr: make(map[K]V, max/2),
		prev: make(map[K]V),
		max:  max,
	}
}

// get returns the cached value for k if present, promoting it to the
// current generation when found in the previous one.
func (c *twoGen[K, V]) get(k K) (V, bool) {
	c.mu.RLock()
	if v, ok := c.curr[k]; ok {
		c.mu.RUnlock()
		return v, true
	}
	if v, ok := c.prev[k]; ok {
		c.mu.RUnlock()
		c.put(k, v)
		return v, true
	}
	c.mu.RUnlock()
	var zero V
	return zero, false
}

// put stores the value for k, rotating generations if needed.
func (c *twoGen[K, V]) put(k K, v V) {
	c.mu.Lock()
	if len(c.curr) >= c.max {
		c.prev = c.curr
		c.curr = make(map[K]V, c.max/2)
	}
	c.curr[k] = v
	c.mu.Unlock()
}

// columnsSignature returns a stable signature string for an ordered list of column names.
func columnsSignature(cols []string) string {
	// unit separator; unlikely to appear in column names
	return strings.Join(cols, "\x1f")
}

// getScanPlan returns a cached scanPlan for (dst struct type, cols), or builds and caches it.
// The returned plan is immutable and safe for concurrent reuse.
func getScanPlan(cols []string, dstT reflect.Type) (*scanPlan, error) {
	key := planKey{dstType: dstT, sig: columnsSignature(cols)}
	if p, ok := scanPlanCache.get(key); ok {
		return p, nil
	}
	p, err := buildScanPlan(cols, dstT)
	if err != nil {
		return nil, err
	}
	scanPlanCache.put(key, p)
	return p, nil
}
