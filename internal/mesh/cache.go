package mesh

import "sonar-sim-go/internal/types"

// Cache keeps the mesh of the last geometry it was asked for.
type Cache struct {
	geom  types.ScanGeometry
	mesh  *Mesh
	built int
}

// Get returns the cached mesh when geom is unchanged and rebuilds it otherwise.
func (c *Cache) Get(geom types.ScanGeometry) (*Mesh, error) {
	if c.mesh != nil && c.geom == geom {
		return c.mesh, nil
	}
	m, err := Build(geom)
	if err != nil {
		return nil, err
	}
	c.geom = geom
	c.mesh = m
	c.built++
	return m, nil
}

// Builds counts how many meshes the cache has built.
func (c *Cache) Builds() int {
	return c.built
}

// Reset drops the cached mesh.
func (c *Cache) Reset() {
	c.mesh = nil
	c.geom = types.ScanGeometry{}
}
