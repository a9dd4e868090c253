package blocks

import (
	"github.com/go-gl/gl/v4.3-core/gl"

	"voxmesh/internal/graphics"
	"voxmesh/internal/graphics/textures"
	"voxmesh/internal/logging"
)

// newTextureArray loads the generated block layers into a GL_TEXTURE_2D_ARRAY.
func newTextureArray() (uint32, error) {
	images := textures.Layers()

	var texture uint32
	gl.GenTextures(1, &texture)
	gl.BindTexture(gl.TEXTURE_2D_ARRAY, texture)

	gl.TexImage3D(
		gl.TEXTURE_2D_ARRAY,
		0,
		gl.RGBA8,
		textures.Size,
		textures.Size,
		int32(len(images)),
		0,
		gl.RGBA,
		gl.UNSIGNED_BYTE,
		nil,
	)
	for i, img := range images {
		gl.TexSubImage3D(
			gl.TEXTURE_2D_ARRAY,
			0,
			0, 0, int32(i),
			textures.Size,
			textures.Size,
			1,
			gl.RGBA,
			gl.UNSIGNED_BYTE,
			gl.Ptr(img.Pix),
		)
	}

	gl.TexParameteri(gl.TEXTURE_2D_ARRAY, gl.TEXTURE_MIN_FILTER, gl.NEAREST_MIPMAP_LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D_ARRAY, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D_ARRAY, gl.TEXTURE_WRAP_S, gl.REPEAT)
	gl.TexParameteri(gl.TEXTURE_2D_ARRAY, gl.TEXTURE_WRAP_T, gl.REPEAT)
	gl.GenerateMipmap(gl.TEXTURE_2D_ARRAY)
	gl.BindTexture(gl.TEXTURE_2D_ARRAY, 0)

	if err := graphics.CheckError("block texture array"); err != nil {
		gl.DeleteTextures(1, &texture)
		return 0, err
	}
	logging.Logger().Debug("block textures loaded", "layers", len(images), "size", textures.Size)
	return texture, nil
}
