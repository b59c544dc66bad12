// glTF scene graph traversal.
package formats

import (
	"fmt"

	"github.com/qmuntal/gltf"

	"github.com/Faultbox/meshslim/pkg/math"
)

// nodeVisit is one node reached by the walker with its world transform.
type nodeVisit struct {
	Node  int
	World math.Mat4
}

type walkFrame struct {
	node   int
	parent math.Mat4
}

// nodeWalker is a restartable depth-first iterator over the default scene.
// Children are visited in declaration order after their parent. A node
// reached twice (a cycle, or two parents) is an error.
type nodeWalker struct {
	doc     *gltf.Document
	roots   []int
	stack   []walkFrame
	visited []bool
}

func newNodeWalker(doc *gltf.Document) (*nodeWalker, error) {
	w := &nodeWalker{doc: doc}

	switch {
	case len(doc.Scenes) > 0:
		scene := 0
		if doc.Scene != nil {
			scene = *doc.Scene
		}
		if scene < 0 || scene >= len(doc.Scenes) {
			return nil, fmt.Errorf("%w: scene %d of %d", ErrInvalidDocument, scene, len(doc.Scenes))
		}
		w.roots = doc.Scenes[scene].Nodes
	case len(doc.Nodes) > 0:
		w.roots = rootNodes(doc.Nodes)
	}

	w.Reset()
	return w, nil
}

// rootNodes returns the nodes no other node lists as a child, ascending.
func rootNodes(nodes []*gltf.Node) []int {
	isChild := make([]bool, len(nodes))
	for _, n := range nodes {
		for _, c := range n.Children {
			if c >= 0 && c < len(nodes) {
				isChild[c] = true
			}
		}
	}
	var roots []int
	for i, child := range isChild {
		if !child {
			roots = append(roots, i)
		}
	}
	return roots
}

// Empty reports whether the document has no scene graph at all.
func (w *nodeWalker) Empty() bool {
	return len(w.doc.Scenes) == 0 && len(w.doc.Nodes) == 0
}

// Reset rewinds the walker to the first root.
func (w *nodeWalker) Reset() {
	w.visited = make([]bool, len(w.doc.Nodes))
	w.stack = w.stack[:0]
	for i := len(w.roots) - 1; i >= 0; i-- {
		w.stack = append(w.stack, walkFrame{node: w.roots[i], parent: math.Identity()})
	}
}

// Next returns the next node, or ok=false when the walk is complete.
func (w *nodeWalker) Next() (visit nodeVisit, ok bool, err error) {
	if len(w.stack) == 0 {
		return nodeVisit{}, false, nil
	}
	frame := w.stack[len(w.stack)-1]
	w.stack = w.stack[:len(w.stack)-1]

	if frame.node < 0 || frame.node >= len(w.doc.Nodes) {
		return nodeVisit{}, false, fmt.Errorf("%w: node %d of %d", ErrInvalidDocument, frame.node, len(w.doc.Nodes))
	}
	if w.visited[frame.node] {
		return nodeVisit{}, false, fmt.Errorf("%w: node %d reached twice", ErrInvalidDocument, frame.node)
	}
	w.visited[frame.node] = true

	node := w.doc.Nodes[frame.node]
	world := localMatrix(node)
	if !frame.parent.IsIdentity() {
		world = frame.parent.Mul(world)
	}
	for i := len(node.Children) - 1; i >= 0; i-- {
		w.stack = append(w.stack, walkFrame{node: node.Children[i], parent: world})
	}
	return nodeVisit{Node: frame.node, World: world}, true, nil
}

// localMatrix returns the node's local transform. A matrix other than the
// identity wins over translation/rotation/scale. Nodes without any
// transform get the exact identity so untransformed positions stay
// bit-identical. Zero rotation and scale arrays count as unset.
func localMatrix(n *gltf.Node) math.Mat4 {
	if n.Matrix != gltf.DefaultMatrix && n.Matrix != unsetNode.Matrix {
		return mat4Of(n.Matrix)
	}
	rotated := n.Rotation != gltf.DefaultRotation && n.Rotation != unsetNode.Rotation
	scaled := n.Scale != gltf.DefaultScale && n.Scale != unsetNode.Scale
	if n.Translation == unsetNode.Translation && !rotated && !scaled {
		return math.Identity()
	}

	r := math.QuatIdentity()
	if rotated {
		r = quatOf(n.Rotation)
	}
	s := math.Vec3{X: 1, Y: 1, Z: 1}
	if scaled {
		s = vec3Of(n.Scale)
	}
	return math.TRS(vec3Of(n.Translation), r, s)
}

var unsetNode gltf.Node
