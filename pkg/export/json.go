package export

// JSONExporter emits the raw report: the run summary plus every output
// artifact's content, without framework vocabulary.
type JSONExporter struct{}

func (JSONExporter) Framework() string { return "json" }

func (JSONExporter) Export(in Input) ([]byte, error) {
	report := runSummary(in)

	outputs := make(map[string]any, len(in.Outputs))
	for id, msg := range in.Outputs {
		if msg == nil {
			continue
		}
		outputs[id] = map[string]any{
			"schema":  msg.Schema.Key(),
			"content": msg.Content,
		}
	}
	report["outputs"] = outputs
	return render(in, report)
}
