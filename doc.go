/*

Package bifrost implements the content-addressed blob pipeline that lets a
version control host commit small text proxy files in place of large blobs,
while the actual bytes live in one or more external stores.

Vocabulary:

- blob: the original file content as tracked by the VCS
- digest: 160-bit SHA-1 content address of a blob, rendered as 40 uppercase
  hex characters
- proxy: the four-line surrogate file committed to VCS history in place of
  a blob; carries a digest and a length
- cache: the content-addressed directory tree under the repository where
  clean and smudge exchange blob bytes with the outside world
- cache path: digest-derived relative path, three hex-nybble subdirs deep
- store: a named, configured backing location for blob bytes (local
  filesystem, FTP, FTPS, or SFTP)
- primary store: a store that must be updated on push for the push to
  succeed
- catalog: the ordered list of store records parsed out of repository
  config
- clean / smudge: the VCS filter operations, blob -> proxy on check-in,
  proxy -> blob on checkout

*/

package bifrost
