// Package netlink implements the framing shared by every netlink(7) protocol
// family: the fixed 16-byte message header followed by a stream of type-length-value
// attributes, together with the lifecycle of the sockets carrying them.
//
// Messages are built with a Message buffer whose header length is kept in sync
// on every Put. Received buffers are walked with an Iterator which never reads
// past the bytes it was handed: a truncated or otherwise malformed tail simply
// ends the iteration, as partial datagrams are a normal occurrence in netlink.
//
// Attributes follow the layout set forth in include/uapi/linux/netlink.h:
//
//	<------- NLA_HDRLEN ------> <-- NLA_ALIGN(payload)-->
//	+---------------------+- - -+- - - - - - - - - -+- - -+
//	|        Header       | Pad |     Payload       | Pad |
//	|   (struct nlattr)   | ing |                   | ing |
//	+---------------------+- - -+- - - - - - - - - -+- - -+
//
// Note nla_len counts the 4-byte header too, just like the kernel and libnl do.
// Every decoding primitive in this package reports the payload length instead.
// All integers travel in host byte order.
//
// Higher level families (rtnetlink, generic netlink...) are out of scope: callers
// can prepend their family header with Message.Append and skip over it when
// iterating by passing its length to Message.Attributes.
//
// 0: https://www.man7.org/linux/man-pages/man7/netlink.7.html
//
// 1: https://elixir.bootlin.com/linux/v6.12.4/source/include/uapi/linux/netlink.h#L229
package netlink
