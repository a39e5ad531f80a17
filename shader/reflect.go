package shader

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga/ir"

	"github.com/gogpu/framegraph/gfx"
)

// InstancePrefix marks a vertex input as per-instance data. Elements whose
// semantic starts with it are placed in slot 1.
const InstancePrefix = "INSTANCE"

// ReflectInputLayout derives the input layout of a vertex entry point from
// its location-bound inputs, ordered by location. Offsets are AppendAligned.
func ReflectInputLayout(m *ir.Module, entryPoint string) (gfx.InputLayout, error) {
	ep, err := findEntryPoint(m, Key{EntryPoint: entryPoint, Stage: gfx.StageVertex})
	if err != nil {
		return gfx.InputLayout{}, err
	}
	var elems []gfx.InputElement
	add := func(name string, th ir.TypeHandle, b *ir.Binding) error {
		if b == nil {
			return nil
		}
		loc, ok := (*b).(ir.LocationBinding)
		if !ok {
			return nil
		}
		format, err := vertexFormat(m, th)
		if err != nil {
			return fmt.Errorf("%w: input %q: %w", ErrReflection, name, err)
		}
		sem, idx := semantic(name)
		e := gfx.InputElement{
			SemanticName:  sem,
			SemanticIndex: idx,
			Format:        format,
			Location:      loc.Location,
			Offset:        gfx.AppendAligned,
			StepMode:      gputypes.VertexStepModeVertex,
		}
		if strings.HasPrefix(sem, InstancePrefix) {
			e.Slot = 1
			e.StepMode = gputypes.VertexStepModeInstance
		}
		elems = append(elems, e)
		return nil
	}
	for _, arg := range ep.Function.Arguments {
		if arg.Binding != nil {
			if err := add(arg.Name, arg.Type, arg.Binding); err != nil {
				return gfx.InputLayout{}, err
			}
			continue
		}
		if int(arg.Type) >= len(m.Types) {
			continue
		}
		st, ok := m.Types[arg.Type].Inner.(ir.StructType)
		if !ok {
			continue
		}
		for _, mem := range st.Members {
			if err := add(mem.Name, mem.Type, mem.Binding); err != nil {
				return gfx.InputLayout{}, err
			}
		}
	}
	slices.SortStableFunc(elems, func(a, b gfx.InputElement) int { return cmp.Compare(a.Location, b.Location) })
	return gfx.InputLayout{Elements: elems}, nil
}

var (
	floatFormats = [5]gputypes.VertexFormat{1: gputypes.VertexFormatFloat32, 2: gputypes.VertexFormatFloat32x2, 3: gputypes.VertexFormatFloat32x3, 4: gputypes.VertexFormatFloat32x4}
	uintFormats  = [5]gputypes.VertexFormat{1: gputypes.VertexFormatUint32, 2: gputypes.VertexFormatUint32x2, 3: gputypes.VertexFormatUint32x3, 4: gputypes.VertexFormatUint32x4}
	sintFormats  = [5]gputypes.VertexFormat{1: gputypes.VertexFormatSint32, 2: gputypes.VertexFormatSint32x2, 3: gputypes.VertexFormatSint32x3, 4: gputypes.VertexFormatSint32x4}
)

func vertexFormat(m *ir.Module, th ir.TypeHandle) (gputypes.VertexFormat, error) {
	if int(th) >= len(m.Types) {
		return 0, fmt.Errorf("type handle %d out of range", th)
	}
	var scalar ir.ScalarType
	components := 1
	switch t := m.Types[th].Inner.(type) {
	case ir.ScalarType:
		scalar = t
	case ir.VectorType:
		scalar = t.Scalar
		components = int(t.Size)
	default:
		return 0, fmt.Errorf("unsupported type %T", t)
	}
	if scalar.Width != 4 {
		return 0, fmt.Errorf("unsupported scalar width %d", scalar.Width)
	}
	var table *[5]gputypes.VertexFormat
	switch scalar.Kind {
	case ir.ScalarFloat:
		table = &floatFormats
	case ir.ScalarUint:
		table = &uintFormats
	case ir.ScalarSint:
		table = &sintFormats
	default:
		return 0, fmt.Errorf("unsupported scalar kind %d", scalar.Kind)
	}
	if components < 1 || components > 4 {
		return 0, fmt.Errorf("unsupported vector size %d", components)
	}
	return table[components], nil
}

// semantic converts an input name to an upper-case semantic and index:
// "texcoord1" is TEXCOORD 1 and "instanceOffset" is INSTANCE_OFFSET 0.
func semantic(name string) (string, uint32) {
	end := len(name)
	for end > 0 && name[end-1] >= '0' && name[end-1] <= '9' {
		end--
	}
	var idx uint32
	if end < len(name) && end > 0 {
		if n, err := strconv.ParseUint(name[end:], 10, 32); err == nil {
			idx = uint32(n)
		}
		name = name[:end]
	}
	var sb strings.Builder
	prevLower := false
	for _, r := range strings.TrimRight(name, "_") {
		if unicode.IsUpper(r) && prevLower {
			sb.WriteByte('_')
		}
		prevLower = unicode.IsLower(r) || unicode.IsDigit(r)
		sb.WriteRune(unicode.ToUpper(r))
	}
	return sb.String(), idx
}
