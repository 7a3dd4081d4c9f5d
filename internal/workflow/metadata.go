package workflow

import (
	"fmt"
	"regexp"
)

// ParamType is the inferred scalar type of a workflow parameter.
type ParamType string

const (
	TypeBool  ParamType = "bool"
	TypeInt   ParamType = "int"
	TypeFloat ParamType = "float"
	TypeStr   ParamType = "str"
)

// HandlerUploadRel marks a field whose URL values are re-hosted before submission.
const HandlerUploadRel = "upload_rel"

var titlePattern = regexp.MustCompile(`^[a-zA-Z0-9_.\-]+$`)

// ValidateTitle checks that a tool name only uses letters, digits, underscore, dot and hyphen.
func ValidateTitle(title string) error {
	if !titlePattern.MatchString(title) {
		return fmt.Errorf("%w: %q must match [A-Za-z0-9_.-]+", ErrInvalidTitle, title)
	}
	return nil
}

type Param struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Description string    `json:"description,omitempty"`
	Required    bool      `json:"required"`
	Default     any       `json:"default"`
	HandlerType string    `json:"handler_type,omitempty"`
}

type ParamMapping struct {
	ParamName     string `json:"param_name"`
	NodeID        string `json:"node_id"`
	InputField    string `json:"input_field"`
	NodeClassType string `json:"node_class_type"`
	HandlerType   string `json:"handler_type,omitempty"`
}

type OutputMapping struct {
	NodeID    string `json:"node_id"`
	OutputVar string `json:"output_var"`
}

type MappingInfo struct {
	ParamMappings  []ParamMapping  `json:"param_mappings"`
	OutputMappings []OutputMapping `json:"output_mappings"`
}

// Metadata is everything discovered about a workflow from its graph.
type Metadata struct {
	Title        string            `json:"title"`
	Description  string            `json:"description,omitempty"`
	Params       map[string]*Param `json:"params"`
	MappingInfo  MappingInfo       `json:"mapping_info"`
	WorkflowID   string            `json:"workflow_id,omitempty"`
	IsRunningHub bool              `json:"is_runninghub"`
}

// Signature lists params in declaration order with required ones first.
func (m *Metadata) Signature() []*Param {
	if m == nil {
		return nil
	}
	seen := make(map[string]bool, len(m.Params))
	var required, optional []*Param
	add := func(p *Param) {
		if p == nil || seen[p.Name] {
			return
		}
		seen[p.Name] = true
		if p.Required {
			required = append(required, p)
		} else {
			optional = append(optional, p)
		}
	}
	for _, mapping := range m.MappingInfo.ParamMappings {
		add(m.Params[mapping.ParamName])
	}
	return append(required, optional...)
}

// OutputVars maps node ids to their declared output variable.
func (m *Metadata) OutputVars() map[string]string {
	vars := make(map[string]string)
	if m == nil {
		return vars
	}
	for _, om := range m.MappingInfo.OutputMappings {
		vars[om.NodeID] = om.OutputVar
	}
	return vars
}

// Validate checks the structural invariants between params and mappings.
func (m *Metadata) Validate() error {
	mapped := make(map[string]bool, len(m.MappingInfo.ParamMappings))
	for _, pm := range m.MappingInfo.ParamMappings {
		if _, ok := m.Params[pm.ParamName]; !ok {
			return fmt.Errorf("mapping on node %s references unknown parameter %q", pm.NodeID, pm.ParamName)
		}
		mapped[pm.ParamName] = true
	}
	for name, p := range m.Params {
		if p.Required && p.Default != nil {
			return fmt.Errorf("required parameter %q must not carry a default", name)
		}
		if !p.Required && p.Default == nil {
			return fmt.Errorf("parameter %q has no default value but not marked as required", name)
		}
		if !mapped[name] {
			return fmt.Errorf("parameter %q is not bound to any node", name)
		}
	}
	return nil
}
