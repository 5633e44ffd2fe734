// Package discovery locates serial console bridges on the local network
// via mDNS.
//
// Bench setups commonly put the target's UART behind a serial-over-TCP
// daemon (ser2net, esp-link, and friends), many of which advertise
// themselves as "_telnet._tcp" services. Scanning for those saves the
// operator from tracking down which lab box and port a given target is
// wired to; a discovered Bridge converts straight into a console transport
// URI.
//
// Discovery needs multicast on the local segment and an open UDP port 5353;
// neither is a given on lab networks, so treat an empty scan as "possibly
// filtered", not "nothing there".
package discovery
