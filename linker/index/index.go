// Package index defines the integer identities used to address linker
// entities. Everything in the linker lives in flat ordered slices; giving
// every kind of slice its own index type keeps a segment index from ever
// being used to look up a memory region.
package index

type (
	// File identifies an output file.
	File int

	// Mem identifies a memory region.
	Mem int

	// Seg identifies a segment.
	Seg int

	// Sect identifies a section globally, across all object files.
	Sect int

	// Obj identifies an object file.
	Obj int

	// ObjSect identifies a section locally within one object file.
	ObjSect int

	// ObjImport identifies an import slot within one object file.
	ObjImport int

	// ObjStr identifies a string table entry within one object file.
	ObjStr int
)
