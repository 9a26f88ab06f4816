package runbook

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, doc string) (*Runbook, error) {
	t.Helper()
	return Parse([]byte(doc))
}

func TestParseFullDocument(t *testing.T) {
	rb, err := parse(t, `
name: billing_audit
description: scan billing sources for personal data
framework: GDPR
config:
  timeout: 600
  max_concurrency: 4
inputs:
  db_dsn:
    input_schema: standard_input
    sensitive: true
artifacts:
  raw:
    source:
      type: filesystem
      properties:
        path: /data
  findings:
    inputs: [raw]
    process:
      type: personal_data_analyser
    output: true
outputs:
  report:
    artifact: findings
`)
	require.NoError(t, err)
	assert.Equal(t, "billing_audit", rb.Name)
	assert.Equal(t, "GDPR", rb.Framework)
	assert.Equal(t, 600, rb.Config.Timeout())
	assert.Equal(t, 4, rb.Config.Concurrency())
	assert.Equal(t, []string{"findings", "raw"}, rb.ArtifactIDs())
	assert.Equal(t, []string{"db_dsn"}, rb.SensitiveInputs())
	assert.Equal(t, "/data", rb.Artifacts["raw"].Source.Properties["path"])
}

func TestParseDefaults(t *testing.T) {
	rb, err := parse(t, `
name: minimal
description: one source
artifacts:
  raw:
    source:
      type: filesystem
`)
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeoutSeconds, rb.Config.Timeout())
	assert.Equal(t, DefaultMaxConcurrency, rb.Config.Concurrency())
	assert.Equal(t, DefaultMaxChildDepth, rb.Config.ChildDepth())
	assert.Empty(t, rb.SensitiveInputs())
}

func TestParseScalarInputs(t *testing.T) {
	rb, err := parse(t, `
name: scalar
description: inputs as a bare scalar
artifacts:
  raw:
    source:
      type: filesystem
  findings:
    inputs: raw
    process:
      type: personal_data_analyser
`)
	require.NoError(t, err)
	assert.Equal(t, StringList{"raw"}, rb.Artifacts["findings"].Inputs)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := parse(t, `
name: typo
description: misspelled key
artifcats: {}
`)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestValidateStructuralErrors(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "missing name",
			doc: `
description: d
artifacts:
  raw:
    source: {type: filesystem}
`,
			want: "name is required",
		},
		{
			name: "missing description",
			doc: `
name: n
artifacts:
  raw:
    source: {type: filesystem}
`,
			want: "description is required",
		},
		{
			name: "unknown framework",
			doc: `
name: n
description: d
framework: PIPEDA
artifacts:
  raw:
    source: {type: filesystem}
`,
			want: "unknown framework",
		},
		{
			name: "no production mode",
			doc: `
name: n
description: d
artifacts:
  empty: {}
`,
			want: "exactly one of",
		},
		{
			name: "source and inputs together",
			doc: `
name: n
description: d
artifacts:
  raw:
    source: {type: filesystem}
  both:
    source: {type: filesystem}
    inputs: [raw]
    process: {type: personal_data_analyser}
`,
			want: "exactly one of",
		},
		{
			name: "inputs without process",
			doc: `
name: n
description: d
artifacts:
  raw:
    source: {type: filesystem}
  findings:
    inputs: [raw]
`,
			want: "no process type",
		},
		{
			name: "unknown input reference",
			doc: `
name: n
description: d
artifacts:
  findings:
    inputs: [ghost]
    process: {type: personal_data_analyser}
`,
			want: "unknown input",
		},
		{
			name: "unsupported merge policy",
			doc: `
name: n
description: d
artifacts:
  a:
    source: {type: filesystem}
  b:
    source: {type: filesystem}
  merged:
    inputs: [a, b]
    process: {type: personal_data_analyser}
    merge: union
`,
			want: "unsupported merge policy",
		},
		{
			name: "concatenate with single input",
			doc: `
name: n
description: d
artifacts:
  a:
    source: {type: filesystem}
  merged:
    inputs: [a]
    process: {type: personal_data_analyser}
    merge: concatenate
`,
			want: "requires multiple inputs",
		},
		{
			name: "child runbook without output",
			doc: `
name: n
description: d
artifacts:
  child:
    child_runbook:
      path: sub.yaml
`,
			want: "needs output or output_mapping",
		},
		{
			name: "input_mapping to unknown artifact",
			doc: `
name: n
description: d
artifacts:
  child:
    child_runbook:
      path: sub.yaml
      output: findings
      input_mapping:
        data: ghost
`,
			want: "unknown artifact",
		},
		{
			name: "output references unknown artifact",
			doc: `
name: n
description: d
artifacts:
  raw:
    source: {type: filesystem}
outputs:
  report:
    artifact: ghost
`,
			want: "unknown artifact",
		},
		{
			name: "negative config",
			doc: `
name: n
description: d
config:
  timeout: -1
artifacts:
  raw:
    source: {type: filesystem}
`,
			want: "non-negative",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parse(t, tc.doc)
			require.ErrorIs(t, err, ErrMalformed)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestInputsSatisfyArtifactReferences(t *testing.T) {
	// A processing artifact may consume a declared runbook input
	// instead of another artifact.
	rb, err := parse(t, `
name: child
description: consumes a bound input
inputs:
  upstream:
    input_schema: standard_input
artifacts:
  findings:
    inputs: [upstream]
    process:
      type: personal_data_analyser
`)
	require.NoError(t, err)
	assert.Contains(t, rb.Inputs, "upstream")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: from_file
description: loaded from disk
artifacts:
  raw:
    source:
      type: filesystem
`), 0o600))

	rb, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from_file", rb.Name)

	_, err = Load(filepath.Join(dir, "absent.yaml"))
	require.Error(t, err)
}
