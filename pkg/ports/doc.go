// Package ports defines the interfaces between the traversal core and its
// external collaborators: the model invoker, the persistence store, the
// graph source, and the distributed locker. Adapters implement these ports;
// the core depends only on this package and domain.
package ports
