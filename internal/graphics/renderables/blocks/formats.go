package blocks

import (
	"fmt"

	"github.com/go-gl/gl/v4.3-core/gl"
	"github.com/gogpu/gputypes"
)

// bufferTarget picks the GL binding point a buffer is created on.
func bufferTarget(usage gputypes.BufferUsage) uint32 {
	switch {
	case usage.Contains(gputypes.BufferUsageIndirect):
		return gl.DRAW_INDIRECT_BUFFER
	case usage.Contains(gputypes.BufferUsageIndex):
		return gl.ELEMENT_ARRAY_BUFFER
	case usage.Contains(gputypes.BufferUsageVertex):
		return gl.ARRAY_BUFFER
	}
	return gl.COPY_WRITE_BUFFER
}

func indexType(f gputypes.IndexFormat) uint32 {
	if f == gputypes.IndexFormatUint16 {
		return gl.UNSIGNED_SHORT
	}
	return gl.UNSIGNED_INT
}

type attribFormat struct {
	size    int32
	xtype   uint32
	integer bool
}

func vertexAttribFormat(f gputypes.VertexFormat) (attribFormat, error) {
	switch f {
	case gputypes.VertexFormatFloat32:
		return attribFormat{1, gl.FLOAT, false}, nil
	case gputypes.VertexFormatFloat32x2:
		return attribFormat{2, gl.FLOAT, false}, nil
	case gputypes.VertexFormatFloat32x3:
		return attribFormat{3, gl.FLOAT, false}, nil
	case gputypes.VertexFormatFloat32x4:
		return attribFormat{4, gl.FLOAT, false}, nil
	case gputypes.VertexFormatUint32:
		return attribFormat{1, gl.UNSIGNED_INT, true}, nil
	case gputypes.VertexFormatUint32x2:
		return attribFormat{2, gl.UNSIGNED_INT, true}, nil
	case gputypes.VertexFormatSint32:
		return attribFormat{1, gl.INT, true}, nil
	case gputypes.VertexFormatSint32x3:
		return attribFormat{3, gl.INT, true}, nil
	}
	return attribFormat{}, fmt.Errorf("blocks: unsupported vertex format %s", f)
}

// setupVertexLayout declares layout's attributes on the bound VAO and
// ARRAY_BUFFER.
func setupVertexLayout(layout gputypes.VertexBufferLayout) error {
	stride := int32(layout.ArrayStride)
	for _, a := range layout.Attributes {
		f, err := vertexAttribFormat(a.Format)
		if err != nil {
			return err
		}
		gl.EnableVertexAttribArray(a.ShaderLocation)
		if f.integer {
			gl.VertexAttribIPointerWithOffset(a.ShaderLocation, f.size, f.xtype, stride, uintptr(a.Offset))
		} else {
			gl.VertexAttribPointerWithOffset(a.ShaderLocation, f.size, f.xtype, false, stride, uintptr(a.Offset))
		}
	}
	return nil
}
