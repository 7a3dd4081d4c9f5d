package workflow

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/comfy-mcp/comfy-mcp/internal/shared"
)

const (
	outputPrefix         = "$output."
	descriptionNodeTitle = "MCP"
)

var (
	paramTitlePattern = regexp.MustCompile(`^\$(\w+)\.(~)?(\w+)(!)?(?::(.+))?$`)

	knownOutputClassTypes = map[string]bool{
		"SaveImage":     true,
		"SaveVideo":     true,
		"SaveAudio":     true,
		"VHS_SaveVideo": true,
		"VHS_SaveAudio": true,
	}

	descriptionFields = []string{"value", "text", "string"}
)

// ParamTitle is the decoded form of a `$name.[~]field[!][:description]` node title.
type ParamTitle struct {
	Name        string
	Field       string
	Required    bool
	Description string
	HandlerType string
}

// ParseParamTitle decodes the parameter DSL; ok is false when the title is not a parameter declaration.
func ParseParamTitle(title string) (ParamTitle, bool) {
	m := paramTitlePattern.FindStringSubmatch(strings.TrimSpace(title))
	if m == nil {
		return ParamTitle{}, false
	}
	pt := ParamTitle{
		Name:        m[1],
		Field:       m[3],
		Required:    m[4] != "",
		Description: strings.TrimSpace(m[5]),
	}
	if m[2] != "" {
		pt.HandlerType = HandlerUploadRel
	}
	return pt, true
}

// ParseOutputTitle returns the variable of a `$output.<var>` title.
func ParseOutputTitle(title string) (string, bool) {
	if !strings.HasPrefix(title, outputPrefix) {
		return "", false
	}
	v := title[len(outputPrefix):]
	return v, v != ""
}

// IsKnownOutputClass reports whether a node class saves media without needing an explicit marker.
func IsKnownOutputClass(classType string) bool {
	return knownOutputClassTypes[classType]
}

type Parser struct {
	logger *slog.Logger
}

func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger.With("component", "workflow_parser")}
}

// Parse builds the metadata of a graph. Nodes are visited in NodeIDs order so results are stable.
func (p *Parser) Parse(graph Graph, title string) (*Metadata, error) {
	md := &Metadata{
		Title:  title,
		Params: make(map[string]*Param),
		MappingInfo: MappingInfo{
			ParamMappings:  []ParamMapping{},
			OutputMappings: []OutputMapping{},
		},
	}
	md.Description = p.description(graph)

	owners := make(map[string]string)
	for _, id := range graph.NodeIDs() {
		node := graph[id]
		if node == nil {
			continue
		}

		nodeTitle := node.Title()
		if v, ok := ParseOutputTitle(nodeTitle); ok {
			md.MappingInfo.OutputMappings = append(md.MappingInfo.OutputMappings, OutputMapping{NodeID: id, OutputVar: v})
			continue
		}
		if IsKnownOutputClass(node.ClassType) {
			md.MappingInfo.OutputMappings = append(md.MappingInfo.OutputMappings, OutputMapping{NodeID: id, OutputVar: id})
			continue
		}

		pt, ok := ParseParamTitle(nodeTitle)
		if !ok {
			continue
		}
		if prev, dup := owners[pt.Name]; dup {
			return nil, shared.NewParseError("parse_workflow",
				fmt.Sprintf("duplicate parameter name `%s` declared on nodes %s and %s", pt.Name, prev, id), nil)
		}

		param, err := buildParam(node, pt)
		if err != nil {
			p.logger.Error("invalid parameter declaration", "node_id", id, "param", pt.Name, "error", err)
			return nil, err
		}
		owners[pt.Name] = id
		md.Params[pt.Name] = param
		md.MappingInfo.ParamMappings = append(md.MappingInfo.ParamMappings, ParamMapping{
			ParamName:     pt.Name,
			NodeID:        id,
			InputField:    pt.Field,
			NodeClassType: node.ClassType,
			HandlerType:   pt.HandlerType,
		})
	}

	return md, nil
}

func buildParam(node *Node, pt ParamTitle) (*Param, error) {
	def, typ, found := literalDefault(node, pt.Field)
	if !pt.Required && !found {
		return nil, shared.NewParseError("parse_workflow",
			fmt.Sprintf("Parameter `%s` has no default value but not marked as required", pt.Name), nil)
	}
	param := &Param{
		Name:        pt.Name,
		Type:        typ,
		Description: pt.Description,
		Required:    pt.Required,
		HandlerType: pt.HandlerType,
	}
	if !pt.Required {
		param.Default = def
	}
	return param, nil
}

// literalDefault reads inputs[field] unless it is absent, null or a connection.
func literalDefault(node *Node, field string) (any, ParamType, bool) {
	v, ok := node.Inputs[field]
	if !ok || v == nil || IsConnection(v) {
		return nil, TypeStr, false
	}
	switch t := v.(type) {
	case bool:
		return t, TypeBool, true
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, TypeInt, true
		}
		if f, err := t.Float64(); err == nil {
			return f, TypeFloat, true
		}
		return t.String(), TypeStr, true
	case int:
		return int64(t), TypeInt, true
	case int64:
		return t, TypeInt, true
	case float64:
		return t, TypeFloat, true
	default:
		return v, TypeStr, true
	}
}

// description returns the text of the single node titled "MCP"; several such nodes yield none.
func (p *Parser) description(graph Graph) string {
	var found []*Node
	for _, id := range graph.NodeIDs() {
		if node := graph[id]; node != nil && node.Title() == descriptionNodeTitle {
			found = append(found, node)
		}
	}
	switch len(found) {
	case 0:
		return ""
	case 1:
	default:
		p.logger.Error("multiple description nodes found, ignoring all of them", "count", len(found))
		return ""
	}

	lowered := make(map[string]any, len(found[0].Inputs))
	for k, v := range found[0].Inputs {
		lowered[strings.ToLower(k)] = v
	}
	for _, field := range descriptionFields {
		if v, ok := lowered[field]; ok {
			if s, isStr := v.(string); isStr {
				return strings.TrimSpace(s)
			}
			return strings.TrimSpace(fmt.Sprint(v))
		}
	}
	p.logger.Error("description node has no usable field", "tried", descriptionFields)
	return ""
}

// ParseFile reads a literal graph from disk; the title falls back to the file stem.
func (p *Parser) ParseFile(path, toolName string) (Graph, *Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, shared.NewParseError("parse_workflow_file", "failed to read workflow file", err)
	}
	graph, err := DecodeGraph(data)
	if err != nil {
		return nil, nil, shared.NewParseError("parse_workflow_file", "", err)
	}
	md, err := p.Parse(graph, TitleFor(path, toolName))
	if err != nil {
		return nil, nil, err
	}
	return graph, md, nil
}

// TitleFor returns toolName or the file name without its extension.
func TitleFor(path, toolName string) string {
	if toolName != "" {
		return toolName
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
