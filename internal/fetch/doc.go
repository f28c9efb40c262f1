// Package fetch defines core types shared across subsystems: request and
// result shapes, collaborator interfaces, and the transport error taxonomy.
package fetch
