/*
Package provisioner sets up a workstation from a declarative manifest.

The primary goal of provisioner is to be run again and again safely: every system
location it overwrites is backed up first, every download is verified before use, and
a failed package never prevents the next one from being provisioned.
*/
package provisioner
