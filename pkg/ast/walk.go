package ast

// Walk traverses the tree rooted at n in depth-first order, calling visit for
// each node before its children. Children are skipped when visit returns
// false. Children are visited in source order.
func Walk(n Node, visit func(Node) bool) {
	if n == nil || !visit(n) {
		return
	}

	switch n := n.(type) {
	case *Program:
		for _, d := range n.Decls {
			Walk(d, visit)
		}
	case *FuncDef:
		if n.Body != nil {
			Walk(n.Body, visit)
		}
	case *Block:
		for _, s := range n.Statements {
			Walk(s, visit)
		}
	case *Return:
		if n.Value != nil {
			Walk(n.Value, visit)
		}
	case *If:
		walkConditional(n.Condition, n.Then, n.Else, visit)
	case *ElseIf:
		walkConditional(n.Condition, n.Then, n.Else, visit)
	case *Else:
		Walk(n.Block, visit)
	case *Assign:
		if n.Value != nil {
			Walk(n.Value, visit)
		}
	case *FuncCall:
		for _, a := range n.Args {
			Walk(a, visit)
		}
	case *BinOp:
		Walk(n.Left, visit)
		Walk(n.Right, visit)
	case *Import, *Number, *String, *Ident:
		// leaves
	}
}

func walkConditional(cond Expression, then *Block, els Statement, visit func(Node) bool) {
	Walk(cond, visit)
	if then != nil {
		Walk(then, visit)
	}
	if els != nil {
		Walk(els, visit)
	}
}
