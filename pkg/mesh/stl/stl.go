// Package stl reads and writes triangulated surfaces in the STL
// format, both the 84-byte-header binary layout and the ASCII
// "solid ... facet normal ..." layout. Decoding produces a triangle
// soup; DecodeModel welds it into a mesh.Mesh ready for the pipeline.
package stl

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"

	"github.com/robertoSreis/TechDraw/pkg/mesh"
)

const binaryHeaderLen = 80

var le = binary.LittleEndian

// DecodeOptions controls the model-space normalization applied after
// the raw triangles are read.
type DecodeOptions struct {
	// ZUpToYUp swaps the Y and Z axes so Z-up STL exports match the
	// pipeline's Y-up convention.
	ZUpToYUp bool
	// RecenterBase centers the model on the X and Z axes and shifts it
	// so its lowest point sits at Y=0.
	RecenterBase bool
}

// Decode reads an STL stream and returns its triangles as corner
// triples. The stored per-facet normals are ignored; the pipeline
// recomputes normals from the vertex winding.
func Decode(r io.Reader) ([][3]r3.Vector, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("stl: read: %w", err)
	}
	if isASCII(data) {
		return decodeASCII(data)
	}
	return decodeBinary(data)
}

// DecodeFile decodes the STL file at path.
func DecodeFile(path string) ([][3]r3.Vector, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("stl: %w", err)
	}
	defer f.Close()
	return Decode(bufio.NewReader(f))
}

// DecodeModel decodes an STL stream, applies the requested
// normalization, and welds the triangle soup into a Mesh.
func DecodeModel(r io.Reader, opts DecodeOptions) (*mesh.Mesh, error) {
	tris, err := Decode(r)
	if err != nil {
		return nil, err
	}
	if opts.ZUpToYUp {
		for i := range tris {
			for j := range tris[i] {
				tris[i][j].Y, tris[i][j].Z = tris[i][j].Z, tris[i][j].Y
			}
			// Swapping two axes mirrors the coordinate system; flip the
			// winding so normals keep pointing outward.
			tris[i][1], tris[i][2] = tris[i][2], tris[i][1]
		}
	}
	if opts.RecenterBase {
		recenterBase(tris)
	}
	return mesh.FromTriangles(tris)
}

// Encode writes triangles as binary STL. Facet normals are computed
// from the vertex winding.
func Encode(w io.Writer, tris [][3]r3.Vector) error {
	var header [binaryHeaderLen]byte
	copy(header[:], "TechDraw binary STL")
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("stl: write header: %w", err)
	}
	if err := binary.Write(w, le, uint32(len(tris))); err != nil {
		return fmt.Errorf("stl: write count: %w", err)
	}
	buf := make([]byte, 50)
	for _, t := range tris {
		n := t[1].Sub(t[0]).Cross(t[2].Sub(t[0]))
		if norm := n.Norm(); norm > 0 {
			n = n.Mul(1 / norm)
		}
		putVec(buf[0:], n)
		putVec(buf[12:], t[0])
		putVec(buf[24:], t[1])
		putVec(buf[36:], t[2])
		buf[48], buf[49] = 0, 0
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("stl: write facet: %w", err)
		}
	}
	return nil
}

// EncodeFile writes triangles to a binary STL file at path.
func EncodeFile(path string, tris [][3]r3.Vector) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("stl: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := Encode(w, tris); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("stl: flush: %w", err)
	}
	return f.Close()
}

func putVec(b []byte, v r3.Vector) {
	le.PutUint32(b[0:], math.Float32bits(float32(v.X)))
	le.PutUint32(b[4:], math.Float32bits(float32(v.Y)))
	le.PutUint32(b[8:], math.Float32bits(float32(v.Z)))
}

// isASCII decides between the two STL layouts. A leading "solid" is
// not enough on its own: some binary exporters write it into the
// header, so the byte length implied by the binary triangle count is
// checked as well.
func isASCII(data []byte) bool {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if !bytes.HasPrefix(trimmed, []byte("solid")) {
		return false
	}
	if len(data) >= binaryHeaderLen+4 {
		n := le.Uint32(data[binaryHeaderLen : binaryHeaderLen+4])
		if len(data) == binaryHeaderLen+4+int(n)*50 {
			return false
		}
	}
	return bytes.Contains(trimmed, []byte("facet"))
}

func decodeBinary(data []byte) ([][3]r3.Vector, error) {
	if len(data) < binaryHeaderLen+4 {
		return nil, fmt.Errorf("stl: truncated binary header (%d bytes)", len(data))
	}
	n := int(le.Uint32(data[binaryHeaderLen : binaryHeaderLen+4]))
	body := data[binaryHeaderLen+4:]
	if len(body) < n*50 {
		return nil, fmt.Errorf("stl: truncated body: %d triangles declared, %d bytes present", n, len(body))
	}
	tris := make([][3]r3.Vector, n)
	for i := 0; i < n; i++ {
		rec := body[i*50:]
		// Skip the 12-byte stored normal and the 2-byte attribute.
		for j := 0; j < 3; j++ {
			off := 12 + j*12
			tris[i][j] = r3.Vector{
				X: float64(math.Float32frombits(le.Uint32(rec[off:]))),
				Y: float64(math.Float32frombits(le.Uint32(rec[off+4:]))),
				Z: float64(math.Float32frombits(le.Uint32(rec[off+8:]))),
			}
		}
	}
	return tris, nil
}

func decodeASCII(data []byte) ([][3]r3.Vector, error) {
	var tris [][3]r3.Vector
	var corners []r3.Vector

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "vertex":
			if len(fields) != 4 {
				return nil, fmt.Errorf("stl: line %d: vertex needs 3 coordinates", line)
			}
			var v r3.Vector
			var err error
			if v.X, err = strconv.ParseFloat(fields[1], 64); err == nil {
				if v.Y, err = strconv.ParseFloat(fields[2], 64); err == nil {
					v.Z, err = strconv.ParseFloat(fields[3], 64)
				}
			}
			if err != nil {
				return nil, fmt.Errorf("stl: line %d: bad coordinate: %w", line, err)
			}
			corners = append(corners, v)
		case "endfacet":
			if len(corners) != 3 {
				return nil, fmt.Errorf("stl: line %d: facet has %d vertices, want 3", line, len(corners))
			}
			tris = append(tris, [3]r3.Vector{corners[0], corners[1], corners[2]})
			corners = corners[:0]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("stl: scan: %w", err)
	}
	return tris, nil
}

// recenterBase centers the soup on X/Z and rests its lowest point on
// the Y=0 plane, matching how drawings are conventionally laid out.
func recenterBase(tris [][3]r3.Vector) {
	if len(tris) == 0 {
		return
	}
	min := tris[0][0]
	max := tris[0][0]
	for _, t := range tris {
		for _, p := range t {
			min.X = math.Min(min.X, p.X)
			min.Y = math.Min(min.Y, p.Y)
			min.Z = math.Min(min.Z, p.Z)
			max.X = math.Max(max.X, p.X)
			max.Y = math.Max(max.Y, p.Y)
			max.Z = math.Max(max.Z, p.Z)
		}
	}
	shift := r3.Vector{
		X: (min.X + max.X) / 2,
		Y: min.Y,
		Z: (min.Z + max.Z) / 2,
	}
	for i := range tris {
		for j := range tris[i] {
			tris[i][j] = tris[i][j].Sub(shift)
		}
	}
}
