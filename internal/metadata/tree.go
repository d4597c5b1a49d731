package metadata

import "fmt"

// NodeType is the level of a node in the metadata tree.
type NodeType string

const (
	NodeSource     NodeType = "source"
	NodeTable      NodeType = "table"
	NodePermission NodeType = "permission"
	NodeRole       NodeType = "role"
)

// TreeNode is one node of the source > table > kind > role tree.
type TreeNode struct {
	ID       string     `json:"id"`
	Label    string     `json:"label"`
	Type     NodeType   `json:"type"`
	Kind     Kind       `json:"kind,omitempty"`
	Children []TreeNode `json:"children,omitempty"`
}

// BuildTree arranges the permission entries of doc as a tree. Tables
// without permissions and sources without such tables are left out.
func BuildTree(doc *Document) []TreeNode {
	nodes := []TreeNode{}
	for _, src := range ListDataSources(doc) {
		sourceID := "source-" + src.Name
		label := src.Name
		if label == "" {
			label = "Unnamed Source"
		}
		sourceNode := TreeNode{ID: sourceID, Label: label, Type: NodeSource}

		for _, t := range src.Tables {
			tableID := fmt.Sprintf("%s-table-%s-%s", sourceID, t.Table.Schema, t.Table.Name)
			tableNode := TreeNode{ID: tableID, Label: t.Table.String(), Type: NodeTable}

			for _, k := range allKinds {
				list := t.Permissions(k)
				if len(list) == 0 {
					continue
				}
				permID := tableID + "-" + string(k)
				permNode := TreeNode{
					ID:       permID,
					Label:    fmt.Sprintf("%s (%d)", k.Label(), len(list)),
					Type:     NodePermission,
					Kind:     k,
					Children: make([]TreeNode, len(list)),
				}
				for i, e := range list {
					permNode.Children[i] = TreeNode{
						ID:    fmt.Sprintf("%s-role-%s-%d", permID, e.Role, i),
						Label: e.Role,
						Type:  NodeRole,
						Kind:  k,
					}
				}
				tableNode.Children = append(tableNode.Children, permNode)
			}

			if len(tableNode.Children) > 0 {
				sourceNode.Children = append(sourceNode.Children, tableNode)
			}
		}

		if len(sourceNode.Children) > 0 {
			nodes = append(nodes, sourceNode)
		}
	}
	return nodes
}
