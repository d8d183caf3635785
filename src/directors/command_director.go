package directors

import (
	"fmt"
	"strconv"
	"strings"

	"relgraph/src/engine"
	"relgraph/src/helpers"
	"relgraph/src/relation"

	"go.mongodb.org/mongo-driver/bson"
)

// CommandResponse is what every shell command returns.
type CommandResponse struct {
	ResultCount int         `json:"ResultCount"`
	Result      interface{} `json:"Result"`
}

// Usage lists the shell commands.
const Usage = `Commands:
  COMPONENT <Name> [<Name> ...]
  RELATE <Name>: <From> <-<|>-|--|>-<> <To>
  QUERIES <Set> <clause> [; <clause> ...]
  SPAWN
  SET <entity> <Component> <field>=<value> [...]
  GET <entity>
  LINK <relationship> <from> <to>
  UNLINK <relationship> <from> <to>
  DESPAWN <entity>
  MATCH <Set>.<query> [FROM <entity>] [LIMIT <n>]
  DESCRIBE
  HISTORY [<n>]
  DUMP`

// CommandDirector parses one shell command and runs it against service.
func CommandDirector(service *GraphService, command string) (*CommandResponse, error) {
	command = strings.TrimSpace(command)
	command = strings.TrimSuffix(command, ";")
	if command == "" {
		return nil, fmt.Errorf("empty command")
	}
	keyword, rest, _ := strings.Cut(command, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToUpper(keyword) {
	case "COMPONENT":
		names := strings.Fields(rest)
		if len(names) == 0 {
			return nil, fmt.Errorf("COMPONENT requires at least one component name")
		}
		for _, name := range names {
			if err := service.DeclareComponent(name); err != nil {
				return nil, fmt.Errorf("error declaring component '%s': %w", name, err)
			}
		}
		return &CommandResponse{ResultCount: len(names), Result: names}, nil

	case "RELATE":
		d, err := service.DeclareRelationship(rest)
		if err != nil {
			return nil, fmt.Errorf("error declaring relationship: %w", err)
		}
		return &CommandResponse{ResultCount: 1, Result: d.String()}, nil

	case "QUERIES":
		name, src, _ := strings.Cut(rest, " ")
		if name == "" || strings.TrimSpace(src) == "" {
			return nil, fmt.Errorf("QUERIES requires the syntax '<Set> <clause>'")
		}
		set, err := service.DefineQueries(name, src)
		if err != nil {
			return nil, err
		}
		names := set.Names()
		return &CommandResponse{ResultCount: len(names), Result: names}, nil

	case "HELP":
		return &CommandResponse{ResultCount: 1, Result: Usage}, nil
	}

	parts, err := helpers.SplitCommand(command)
	if err != nil {
		return nil, err
	}
	args := parts[1:]

	switch strings.ToUpper(keyword) {
	case "SPAWN":
		e, err := service.Spawn()
		if err != nil {
			return nil, err
		}
		return &CommandResponse{ResultCount: 1, Result: e.String()}, nil

	case "SET":
		if len(args) < 3 {
			return nil, fmt.Errorf("SET requires the syntax '<entity> <Component> <field>=<value>'")
		}
		e, err := relation.ParseEntity(args[0])
		if err != nil {
			return nil, err
		}
		fields := engine.Record{}
		for _, assignment := range args[2:] {
			key, raw, ok := strings.Cut(assignment, "=")
			if !ok || key == "" {
				return nil, fmt.Errorf("invalid field assignment '%s', expected <field>=<value>", assignment)
			}
			fields[key] = parseValue(raw)
		}
		rec, err := service.Set(e, args[1], fields)
		if err != nil {
			return nil, err
		}
		return &CommandResponse{ResultCount: 1, Result: rec}, nil

	case "GET":
		if len(args) != 1 {
			return nil, fmt.Errorf("GET requires the syntax '<entity>'")
		}
		e, err := relation.ParseEntity(args[0])
		if err != nil {
			return nil, err
		}
		components, err := service.Get(e)
		if err != nil {
			return nil, err
		}
		return &CommandResponse{ResultCount: len(components), Result: components}, nil

	case "LINK", "UNLINK":
		if len(args) != 3 {
			return nil, fmt.Errorf("%s requires the syntax '<relationship> <from> <to>'", strings.ToUpper(keyword))
		}
		from, err := relation.ParseEntity(args[1])
		if err != nil {
			return nil, err
		}
		to, err := relation.ParseEntity(args[2])
		if err != nil {
			return nil, err
		}
		if strings.EqualFold(keyword, "LINK") {
			if err := service.Link(args[0], from, to); err != nil {
				return nil, err
			}
			return &CommandResponse{ResultCount: 1, Result: fmt.Sprintf("%s -[%s]-> %s", from, args[0], to)}, nil
		}
		removed, err := service.Unlink(args[0], from, to)
		if err != nil {
			return nil, err
		}
		count := 0
		if removed {
			count = 1
		}
		return &CommandResponse{ResultCount: count, Result: removed}, nil

	case "DESPAWN":
		if len(args) != 1 {
			return nil, fmt.Errorf("DESPAWN requires the syntax '<entity>'")
		}
		e, err := relation.ParseEntity(args[0])
		if err != nil {
			return nil, err
		}
		if err := service.Despawn(e); err != nil {
			return nil, err
		}
		return &CommandResponse{ResultCount: 1, Result: e.String()}, nil

	case "MATCH":
		return matchCommand(service, args)

	case "DESCRIBE":
		desc, err := service.Describe()
		if err != nil {
			return nil, err
		}
		return &CommandResponse{ResultCount: desc.Entities, Result: desc}, nil

	case "HISTORY":
		n := 0
		if len(args) > 0 {
			n, err = strconv.Atoi(args[0])
			if err != nil || n < 0 {
				return nil, fmt.Errorf("HISTORY expects a non-negative count, got '%s'", args[0])
			}
		}
		entries := service.History(n)
		return &CommandResponse{ResultCount: len(entries), Result: entries}, nil

	case "DUMP":
		data, err := service.Dump()
		if err != nil {
			return nil, err
		}
		doc, err := helpers.DecodeBSON(data)
		if err != nil {
			return nil, err
		}
		ext, err := bson.MarshalExtJSON(doc, false, false)
		if err != nil {
			return nil, fmt.Errorf("error rendering dump: %w", err)
		}
		return &CommandResponse{ResultCount: len(data), Result: string(ext)}, nil
	}

	return nil, fmt.Errorf("unknown command: %s", keyword)
}

// matchCommand handles MATCH <Set>.<query> [FROM <entity>] [LIMIT <n>].
func matchCommand(service *GraphService, args []string) (*CommandResponse, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("MATCH requires the syntax '<Set>.<query>'")
	}
	setName, queryName, ok := strings.Cut(args[0], ".")
	if !ok {
		return nil, fmt.Errorf("MATCH expects <Set>.<query>, got '%s'", args[0])
	}
	q, err := service.Query(setName, queryName)
	if err != nil {
		return nil, err
	}

	root := relation.NoEntity
	limit := 0
	for i := 1; i < len(args); i += 2 {
		if i+1 >= len(args) {
			return nil, fmt.Errorf("MATCH option %s needs a value", args[i])
		}
		switch strings.ToUpper(args[i]) {
		case "FROM":
			root, err = relation.ParseEntity(args[i+1])
			if err != nil {
				return nil, err
			}
		case "LIMIT":
			limit, err = strconv.Atoi(args[i+1])
			if err != nil || limit < 0 {
				return nil, fmt.Errorf("LIMIT expects a non-negative count, got '%s'", args[i+1])
			}
		default:
			return nil, fmt.Errorf("unknown MATCH option %s", args[i])
		}
	}

	rows, err := service.Match(q, root, limit)
	if err != nil {
		return nil, err
	}
	return &CommandResponse{ResultCount: len(rows), Result: rows}, nil
}

// parseValue turns a SET value into a string, int64, float64 or bool.
// Quoted values are always strings.
func parseValue(raw string) interface{} {
	if len(raw) >= 2 && (raw[0] == '"' || raw[0] == '\'') {
		return helpers.StripQuotes(raw)
	}
	switch strings.ToLower(raw) {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}
