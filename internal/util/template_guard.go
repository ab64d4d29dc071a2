package util

import (
	"errors"
	"fmt"
	"text/template/parse"
)

var (
	ErrForbiddenTemplate = errors.New("template contains a forbidden action")
	ErrTemplateDepth     = errors.New("template nesting exceeds maximum depth")
)

// maxTemplateDepth bounds if/range/with nesting in request templates.
const maxTemplateDepth = 10

// allowedTemplateFuncs are the text/template builtins a request template may call.
var allowedTemplateFuncs = map[string]any{
	"and": true, "or": true, "not": true,
	"eq": true, "ne": true, "lt": true, "le": true, "gt": true, "ge": true,
	"index": true, "len": true, "slice": true,
	"print": true, "printf": true, "println": true,
	"urlquery": true, "html": true, "js": true,
}

// ValidateTemplate checks a request template before it is executed: only
// fields under .env are reachable, only builtins in allowedTemplateFuncs may
// be called and no other template can be invoked.
func ValidateTemplate(s string) error {
	if s == "" {
		return nil
	}
	trees, err := parse.Parse("request", s, "{{", "}}", allowedTemplateFuncs)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrForbiddenTemplate, err)
	}
	if len(trees) > 1 {
		return fmt.Errorf("%w: define blocks are not allowed", ErrForbiddenTemplate)
	}
	tree := trees["request"]
	if tree == nil || tree.Root == nil {
		return nil
	}
	return validateList(tree.Root, 0)
}

func validateList(list *parse.ListNode, depth int) error {
	if list == nil {
		return nil
	}
	if depth > maxTemplateDepth {
		return ErrTemplateDepth
	}
	for _, n := range list.Nodes {
		if err := validateNode(n, depth); err != nil {
			return err
		}
	}
	return nil
}

func validateNode(node parse.Node, depth int) error {
	switch n := node.(type) {
	case *parse.ActionNode:
		return validatePipe(n.Pipe)
	case *parse.IfNode:
		return validateBranch(&n.BranchNode, depth)
	case *parse.RangeNode:
		return validateBranch(&n.BranchNode, depth)
	case *parse.WithNode:
		return validateBranch(&n.BranchNode, depth)
	case *parse.TemplateNode:
		return fmt.Errorf("%w: template %q", ErrForbiddenTemplate, n.Name)
	}
	return nil
}

func validateBranch(b *parse.BranchNode, depth int) error {
	if err := validatePipe(b.Pipe); err != nil {
		return err
	}
	if err := validateList(b.List, depth+1); err != nil {
		return err
	}
	return validateList(b.ElseList, depth+1)
}

func validatePipe(p *parse.PipeNode) error {
	if p == nil {
		return nil
	}
	for _, cmd := range p.Cmds {
		for _, arg := range cmd.Args {
			if err := validateArg(arg); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateArg(arg parse.Node) error {
	switch a := arg.(type) {
	case *parse.FieldNode:
		if len(a.Ident) == 0 || a.Ident[0] != "env" || len(a.Ident) > 2 {
			return fmt.Errorf("%w: field %s", ErrForbiddenTemplate, a.String())
		}
	case *parse.ChainNode:
		return fmt.Errorf("%w: chained access %s", ErrForbiddenTemplate, a.String())
	case *parse.PipeNode:
		return validatePipe(a)
	}
	return nil
}
