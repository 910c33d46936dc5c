package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/semidx/internal/langregistry"
	"github.com/standardbeagle/semidx/internal/types"
)

var langs = langregistry.New()

func extractFile(t *testing.T, path string, source string) []*types.SemanticSummary {
	t.Helper()
	ext := ""
	if i := lastDot(path); i >= 0 {
		ext = path[i:]
	}
	entry, err := langs.LanguageFor(ext)
	require.NoError(t, err)

	ex := New(path, "test.module", []byte(source), entry.Grammar)
	if entry.Parser == nil {
		summaries, err := ex.Extract(nil)
		require.NoError(t, err)
		return summaries
	}
	parser := entry.Parser()
	tree := parser.Parse([]byte(source), nil)
	summaries, err := ex.Extract(tree)
	require.NoError(t, err)
	return summaries
}

func lastDot(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			return i
		}
	}
	return -1
}

func primaryOf(summaries []*types.SemanticSummary, name string) *types.SemanticSummary {
	for _, s := range summaries {
		if s.Name == name {
			return s
		}
	}
	return nil
}

func TestGoFunctionExtraction(t *testing.T) {
	source := `package demo

func fetchData(id int) error {
	if id > 0 {
		return load(id)
	}
	return nil
}
`
	summaries := extractFile(t, "demo/fetch.go", source)
	require.NotEmpty(t, summaries)

	s := primaryOf(summaries, "fetchData")
	require.NotNil(t, s)
	assert.Equal(t, types.KindFunction, s.Kind)
	assert.Equal(t, "go", s.Language)
	assert.False(t, s.Exported)
	assert.Equal(t, 3, s.StartLine)
	assert.Equal(t, 8, s.EndLine)
	assert.False(t, s.ID.IsZero())
	assert.Equal(t, 1, s.ControlFlow[types.CFIf])
	assert.True(t, s.ExtractionComplete)

	require.NotEmpty(t, s.Params)
	assert.Equal(t, "id", s.Params[0].Name)

	var callNames []string
	for _, c := range s.Calls {
		callNames = append(callNames, c.Name)
	}
	assert.Contains(t, callNames, "load")
	assert.Equal(t, types.RiskLow, s.Risk)
}

func TestGoExportedByCase(t *testing.T) {
	source := "package demo\n\nfunc Public() {}\n\nfunc private() {}\n"
	summaries := extractFile(t, "demo/vis.go", source)

	pub := primaryOf(summaries, "Public")
	require.NotNil(t, pub)
	assert.True(t, pub.Exported)

	priv := primaryOf(summaries, "private")
	require.NotNil(t, priv)
	assert.False(t, priv.Exported)
}

func TestTypeScriptLoginScenario(t *testing.T) {
	source := `export function handleLogin(user) {
  const [state, setState] = useState(null);
  return fetch("/login");
}
`
	summaries := extractFile(t, "src/auth/login.ts", source)
	s := primaryOf(summaries, "handleLogin")
	require.NotNil(t, s)
	assert.Equal(t, types.KindFunction, s.Kind)
	assert.True(t, s.Exported)

	require.NotEmpty(t, s.StateChanges)
	assert.Equal(t, "useState", s.StateChanges[0].InitKind)

	assert.Contains(t, s.Insertions, "network call introduced")
	assert.Equal(t, types.RiskHigh, s.Risk)
}

func TestIdentityStableAcrossRuns(t *testing.T) {
	source := "package demo\n\nfunc fetchData(id int) error { return nil }\n"
	first := extractFile(t, "demo/fetch.go", source)
	second := extractFile(t, "demo/fetch.go", source)
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].ID.String(), second[i].ID.String())
	}
}

func TestEmptyFileProducesRawFallback(t *testing.T) {
	summaries := extractFile(t, "notes/empty.go", "")
	require.Len(t, summaries, 1)
	assert.True(t, summaries[0].IsRaw())
}

func TestCommentOnlyFileProducesRawFallback(t *testing.T) {
	summaries := extractFile(t, "notes/doc.go", "// just a comment\n// and another\n")
	require.Len(t, summaries, 1)
	s := summaries[0]
	assert.True(t, s.IsRaw())
	assert.Contains(t, s.RawFallback, "just a comment")
}

func TestMarkupFallsBackToRaw(t *testing.T) {
	summaries := extractFile(t, "config/app.yaml", "name: demo\nversion: 2\n")
	require.Len(t, summaries, 1)
	assert.True(t, summaries[0].IsRaw())
	assert.Equal(t, "yaml", summaries[0].Language)
}

func TestUseEffectInsertion(t *testing.T) {
	source := `export function Timer() {
  useEffect(tick, [delay]);
  useEffect(boot, []);
}
`
	summaries := extractFile(t, "src/ui/timer.ts", source)
	s := primaryOf(summaries, "Timer")
	require.NotNil(t, s)
	assert.Contains(t, s.Insertions, "effect on delay")
	assert.Contains(t, s.Insertions, "effect on mount")
}

func TestFingerprintsComputed(t *testing.T) {
	source := `package demo

func alpha(n int) int {
	if n > 1 {
		return step(n)
	}
	return n
}
`
	other := `package demo

func beta(n int) int {
	for i := 0; i < n; i++ {
		n += other(i)
	}
	return n
}
`
	a := primaryOf(extractFile(t, "demo/a.go", source), "alpha")
	b := primaryOf(extractFile(t, "demo/b.go", other), "beta")
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.NotZero(t, a.CallFingerprint)
	assert.NotEqual(t, a.FlowFingerprint, b.FlowFingerprint)

	// Structurally identical bodies under a different name collide.
	again := primaryOf(extractFile(t, "demo/c.go", "package demo\n\nfunc gamma(n int) int {\n\tif n > 1 {\n\t\treturn step(n)\n\t}\n\treturn n\n}\n"), "gamma")
	require.NotNil(t, again)
	assert.Equal(t, a.CallFingerprint, again.CallFingerprint)
	assert.Equal(t, a.FlowFingerprint, again.FlowFingerprint)
}
