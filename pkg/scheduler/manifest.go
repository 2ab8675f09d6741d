package scheduler

import (
	"encoding/json"
	"io"
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/askiada/go-preprocess/pkg/pipeline"
)

// Manifest formats.
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

var ErrUnknownFormat = errors.New("unknown manifest format")

// ManifestArgs are the default arguments of every task.
type ManifestArgs struct {
	Owner             string   `json:"owner" yaml:"owner"`
	Retries           int      `json:"retries" yaml:"retries"`
	RetryDelaySeconds int      `json:"retry_delay_seconds" yaml:"retry_delay_seconds"`
	Email             []string `json:"email,omitempty" yaml:"email,omitempty"`
	EmailOnFailure    bool     `json:"email_on_failure" yaml:"email_on_failure"`
	EmailOnRetry      bool     `json:"email_on_retry" yaml:"email_on_retry"`
}

// ManifestTask is one node as an external engine schedules it.
type ManifestTask struct {
	ID               string            `json:"task_id" yaml:"task_id"`
	Type             string            `json:"type" yaml:"type"`
	Operator         string            `json:"operator" yaml:"operator"`
	Upstream         string            `json:"upstream,omitempty" yaml:"upstream,omitempty"`
	PriorityWeight   int               `json:"priority_weight" yaml:"priority_weight"`
	Pool             string            `json:"pool,omitempty" yaml:"pool,omitempty"`
	TimeoutSeconds   int               `json:"execution_timeout_seconds" yaml:"execution_timeout_seconds"`
	OnSkipTrigger    string            `json:"on_skip_trigger_dag_id,omitempty" yaml:"on_skip_trigger_dag_id,omitempty"`
	OnFailureTrigger string            `json:"on_failure_trigger_dag_id,omitempty" yaml:"on_failure_trigger_dag_id,omitempty"`
	OnSuccessTrigger string            `json:"on_success_trigger_dag_id,omitempty" yaml:"on_success_trigger_dag_id,omitempty"`
	Params           map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
	DocMD            string            `json:"doc_md,omitempty" yaml:"doc_md,omitempty"`
}

// Manifest describes a DAG for an external engine.
type Manifest struct {
	DAGID         string         `json:"dag_id" yaml:"dag_id"`
	MaxActiveRuns int            `json:"max_active_runs" yaml:"max_active_runs"`
	DefaultArgs   ManifestArgs   `json:"default_args" yaml:"default_args"`
	Pools         []string       `json:"pools,omitempty" yaml:"pools,omitempty"`
	Tasks         []ManifestTask `json:"tasks" yaml:"tasks"`
}

// NewManifest describes dag, tasks in insertion order.
func NewManifest(dag *pipeline.DAG) (Manifest, error) {
	if dag == nil {
		return Manifest{}, pipeline.ErrDAGMustBeSet
	}

	args := dag.DefaultArgs
	m := Manifest{
		DAGID:         dag.ID,
		MaxActiveRuns: dag.MaxActiveRuns,
		DefaultArgs: ManifestArgs{
			Owner:             args.Owner,
			Retries:           args.Retries,
			RetryDelaySeconds: int(args.RetryDelay.Seconds()),
			Email:             args.Email,
			EmailOnFailure:    args.EmailOnFailure,
			EmailOnRetry:      args.EmailOnRetry,
		},
	}

	pools := make(map[string]struct{})
	for _, id := range dag.IDs() {
		node, err := dag.Node(id)
		if err != nil {
			return Manifest{}, err
		}

		info := node.Info()
		m.Tasks = append(m.Tasks, ManifestTask{
			ID:               node.ID,
			Type:             string(info.Type),
			Operator:         node.Operator,
			Upstream:         node.Upstream(),
			PriorityWeight:   node.Priority,
			Pool:             node.Pool,
			TimeoutSeconds:   int(node.Timeout.Seconds()),
			OnSkipTrigger:    node.OnSkipTrigger,
			OnFailureTrigger: node.OnFailureTrigger,
			OnSuccessTrigger: node.OnSuccessTrigger,
			Params:           node.Params,
			DocMD:            node.Doc,
		})
		if node.Pool != "" {
			pools[node.Pool] = struct{}{}
		}
	}

	for name := range pools {
		m.Pools = append(m.Pools, name)
	}
	sort.Strings(m.Pools)

	return m, nil
}

// WriteManifest writes the manifest of dag to w in format.
func WriteManifest(w io.Writer, dag *pipeline.DAG, format string) error {
	m, err := NewManifest(dag)
	if err != nil {
		return err
	}

	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		err = enc.Encode(m)
		if err != nil {
			return errors.Wrap(err, "unable to encode yaml manifest")
		}
		return errors.Wrap(enc.Close(), "unable to flush yaml manifest")
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return errors.Wrap(enc.Encode(m), "unable to encode json manifest")
	default:
		return errors.Wrap(ErrUnknownFormat, format)
	}
}
